package notify

import (
	"context"

	"ms-booking/internal/models"
)

// Template keys understood by the delivery adapters.
const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingRefunded  = "booking_refunded"
	TemplateEventReminder    = "event_reminder"
)

// JobStore is the queue surface the enqueuer needs.
type JobStore interface {
	Enqueue(ctx context.Context, job *models.NotificationJob) error
}

// Enqueuer builds customer notifications from bookings. Settlement calls it
// after confirming or refunding.
type Enqueuer struct {
	Store       JobStore
	MaxAttempts int
}

func NewEnqueuer(store JobStore, maxAttempts int) *Enqueuer {
	return &Enqueuer{Store: store, MaxAttempts: maxAttempts}
}

func (e *Enqueuer) EnqueueBookingConfirmed(ctx context.Context, booking *models.Booking) error {
	return e.Store.Enqueue(ctx, e.jobFor(booking, TemplateBookingConfirmed))
}

func (e *Enqueuer) EnqueueBookingRefunded(ctx context.Context, booking *models.Booking) error {
	return e.Store.Enqueue(ctx, e.jobFor(booking, TemplateBookingRefunded))
}

func (e *Enqueuer) jobFor(booking *models.Booking, templateKey string) *models.NotificationJob {
	return &models.NotificationJob{
		BookingReference: booking.BookingReference,
		Channel:          models.ChannelEmail,
		Recipient:        booking.CustomerEmail,
		TemplateKey:      templateKey,
		TemplateData: map[string]interface{}{
			"booking_reference": booking.BookingReference,
			"customer_name":     booking.CustomerName,
			"quantity":          booking.Quantity,
			"total_price":       booking.TotalPrice,
		},
		MaxAttempts: e.MaxAttempts,
	}
}
