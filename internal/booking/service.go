package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/tickets/qr"
)

// Precondition errors carry the machine-readable codes surfaced by the API.
const (
	CodeEventNotFound  = "EVENT_NOT_FOUND"
	CodeEventNotOpen   = "EVENT_NOT_BOOKABLE"
	CodeDeadlinePassed = "BOOKING_DEADLINE_PASSED"
	CodeEventInPast    = "EVENT_DATE_PASSED"
	CodeBadRequest     = "INVALID_REQUEST"
)

// RequestError is a rejected reservation precondition.
type RequestError struct {
	Code    string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode extracts the machine-readable code from a reservation error.
func ErrorCode(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code
	}
	var valErr *pricing.ValidationError
	if errors.As(err, &valErr) {
		return valErr.Code
	}
	return ""
}

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	CreateBookingWithTickets(ctx context.Context, booking *models.Booking, tickets []models.Ticket) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	GetTicketsByBooking(ctx context.Context, bookingID string) ([]models.Ticket, error)
	ListNonCancelledByCustomer(ctx context.Context, eventID, email string) ([]models.Booking, error)
	ListBookingsByCustomer(ctx context.Context, email string) ([]models.Booking, error)
	SetPaymentIntent(ctx context.Context, bookingID, intentID string) error
	CancelPendingBooking(ctx context.Context, bookingID string) (bool, error)
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

// Settler is the post-confirmation cancel path: refunding restores inventory,
// which is settlement's job.
type Settler interface {
	Refund(ctx context.Context, bookingID string) error
}

// NotificationCanceller voids still-pending jobs when their booking dies.
type NotificationCanceller interface {
	CancelForBooking(ctx context.Context, bookingReference string) (int, error)
}

type Service struct {
	DB             DBLayer
	Kafka          Publisher
	Settler        Settler
	Notifications  NotificationCanceller
	QR             *qr.Generator
	Logger         *logger.Logger
	ReservationTTL time.Duration
}

func NewService(db DBLayer, kafka Publisher, settler Settler, notifications NotificationCanceller, qrGen *qr.Generator, log *logger.Logger, reservationTTL time.Duration) *Service {
	if reservationTTL <= 0 {
		reservationTTL = 15 * time.Minute
	}
	return &Service{
		DB:             db,
		Kafka:          kafka,
		Settler:        settler,
		Notifications:  notifications,
		QR:             qrGen,
		Logger:         log,
		ReservationTTL: reservationTTL,
	}
}

// CreateBooking validates the request, prices the selection and writes the
// booking plus its tickets in one transaction. Inventory counters are not
// touched here: a pending booking is a soft hold reclaimed by the sweeper if
// payment never lands.
func (s *Service) CreateBooking(ctx context.Context, req models.BookingRequest) (*models.BookingResult, error) {
	if req.EventID == "" || req.Quantity <= 0 || req.CustomerEmail == "" {
		return nil, &RequestError{Code: CodeBadRequest, Message: "event_id, quantity and customer_email are required"}
	}

	ev, err := s.DB.GetEvent(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &RequestError{Code: CodeEventNotFound, Message: fmt.Sprintf("event %s not found", req.EventID)}
		}
		return nil, fmt.Errorf("failed to load event %s: %w", req.EventID, err)
	}

	now := time.Now()
	if ev.Status != models.EventActive {
		return nil, &RequestError{Code: CodeEventNotOpen, Message: fmt.Sprintf("event %s is %s", ev.ID, ev.Status)}
	}
	if !ev.BookingDeadline.IsZero() && now.After(ev.BookingDeadline) {
		return nil, &RequestError{Code: CodeDeadlinePassed, Message: "booking deadline has passed"}
	}
	if !now.Before(ev.EventDate) {
		return nil, &RequestError{Code: CodeEventInPast, Message: "event date is in the past"}
	}

	opt, err := pricing.Validate(ev, req.CategoryID, req.TierID, req.Quantity)
	if err != nil {
		return nil, err
	}
	quote := pricing.CalculateQuote(opt, req.Quantity)

	// Advisory only: an existing live booking for the same event and email is
	// reported back but never blocks the new reservation.
	warnings := s.duplicateWarnings(ctx, req.EventID, req.CustomerEmail)

	booking := &models.Booking{
		BookingID:            uuid.NewString(),
		BookingReference:     NewBookingReference(),
		EventID:              ev.ID,
		CategoryID:           req.CategoryID,
		TierID:               req.TierID,
		Quantity:             req.Quantity,
		UnitPrice:            quote.UnitPrice,
		TotalPrice:           quote.Total,
		Discount:             quote.Discount,
		CustomerName:         req.CustomerName,
		CustomerEmail:        req.CustomerEmail,
		CustomerPhone:        req.CustomerPhone,
		BookingStatus:        models.BookingPending,
		PaymentStatus:        models.PaymentPending,
		ReservationExpiresAt: now.Add(s.ReservationTTL),
		CreatedAt:            now,
	}

	tickets, err := s.buildTickets(booking, opt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build tickets: %w", err)
	}

	if err := s.DB.CreateBookingWithTickets(ctx, booking, tickets); err != nil {
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}

	s.Logger.LogBooking("CREATE", booking.BookingReference,
		fmt.Sprintf("held %d x %s for %s until %s", booking.Quantity, opt.TierName, booking.CustomerEmail,
			booking.ReservationExpiresAt.Format(time.RFC3339)))

	s.publish(kafka.TopicBookingCreated, booking)

	return &models.BookingResult{
		Booking:  booking,
		Tickets:  tickets,
		Event:    models.EventSummary{Title: ev.Title, EventDate: ev.EventDate},
		Warnings: warnings,
	}, nil
}

func (s *Service) buildTickets(booking *models.Booking, opt *pricing.Option, issuedAt time.Time) ([]models.Ticket, error) {
	tickets := make([]models.Ticket, 0, booking.Quantity)
	for i := 1; i <= booking.Quantity; i++ {
		number := TicketNumber(booking.BookingReference, opt.CategoryCode, opt.TierCode, i, issuedAt)
		ticket := models.Ticket{
			TicketID:         uuid.NewString(),
			BookingID:        booking.BookingID,
			BookingReference: booking.BookingReference,
			TicketNumber:     number,
			HolderName:       booking.CustomerName,
			CategoryID:       booking.CategoryID,
			TierID:           booking.TierID,
			TierName:         opt.TierName,
			Price:            opt.Price,
			VerificationHash: qr.VerificationHash(number, booking.BookingReference),
			Status:           models.TicketPending,
			IssuedAt:         issuedAt,
		}
		if s.QR != nil {
			code, err := s.QR.Encode(qr.Payload{
				TicketNumber:     number,
				BookingReference: booking.BookingReference,
				HolderName:       booking.CustomerName,
				TierID:           booking.TierID,
				Price:            opt.Price,
			})
			if err != nil {
				return nil, err
			}
			ticket.QRCode = code
		}
		tickets = append(tickets, ticket)
	}
	return tickets, nil
}

func (s *Service) duplicateWarnings(ctx context.Context, eventID, email string) []models.BookingWarning {
	existing, err := s.DB.ListNonCancelledByCustomer(ctx, eventID, email)
	if err != nil {
		s.Logger.Warn("BOOKING", fmt.Sprintf("duplicate check failed for %s: %v", email, err))
		return nil
	}
	if len(existing) == 0 {
		return nil
	}
	warnings := make([]models.BookingWarning, 0, len(existing))
	for _, b := range existing {
		warnings = append(warnings, models.BookingWarning{
			Code: "DUPLICATE_BOOKING",
			Message: fmt.Sprintf("customer already has booking %s (%s) for this event",
				b.BookingReference, b.BookingStatus),
		})
	}
	return warnings
}

func (s *Service) GetBooking(ctx context.Context, id string) (*models.BookingResult, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("booking %s not found: %w", id, err)
	}
	tickets, err := s.DB.GetTicketsByBooking(ctx, booking.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets for %s: %w", id, err)
	}
	return &models.BookingResult{Booking: booking, Tickets: tickets}, nil
}

// GetBookingByReference resolves the human-readable reference printed on
// tickets and confirmation emails.
func (s *Service) GetBookingByReference(ctx context.Context, reference string) (*models.BookingResult, error) {
	booking, err := s.DB.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("booking %s not found: %w", reference, err)
	}
	tickets, err := s.DB.GetTicketsByBooking(ctx, booking.BookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets for %s: %w", reference, err)
	}
	return &models.BookingResult{Booking: booking, Tickets: tickets}, nil
}

func (s *Service) ListBookingsByCustomer(ctx context.Context, email string) ([]models.Booking, error) {
	return s.DB.ListBookingsByCustomer(ctx, email)
}

// AttachPaymentIntent records the processor reference so the webhook can find
// the hold later.
func (s *Service) AttachPaymentIntent(ctx context.Context, bookingID, intentID string) error {
	if err := s.DB.SetPaymentIntent(ctx, bookingID, intentID); err != nil {
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	return nil
}

// CancelBooking voids a booking. A pending hold is cancelled without touching
// inventory; a confirmed booking goes through the refund path, which restores
// it. Pending notification jobs for the booking are bulk-cancelled either way.
func (s *Service) CancelBooking(ctx context.Context, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return fmt.Errorf("booking %s not found: %w", id, err)
	}

	switch booking.BookingStatus {
	case models.BookingPending:
		cancelled, err := s.DB.CancelPendingBooking(ctx, booking.BookingID)
		if err != nil {
			return fmt.Errorf("failed to cancel booking %s: %w", id, err)
		}
		if !cancelled {
			return errors.New("booking is no longer pending")
		}
	case models.BookingConfirmed:
		if s.Settler == nil {
			return errors.New("confirmed bookings require the refund path")
		}
		if err := s.Settler.Refund(ctx, booking.BookingID); err != nil {
			return fmt.Errorf("refund for booking %s failed: %w", id, err)
		}
	default:
		return fmt.Errorf("cannot cancel a %s booking", booking.BookingStatus)
	}

	if s.Notifications != nil {
		if n, err := s.Notifications.CancelForBooking(ctx, booking.BookingReference); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("failed to cancel notifications for %s: %v", booking.BookingReference, err))
		} else if n > 0 {
			s.Logger.LogBooking("CANCEL", booking.BookingReference, fmt.Sprintf("cancelled %d pending notifications", n))
		}
	}

	s.Logger.LogBooking("CANCEL", booking.BookingReference, "booking cancelled")
	s.publish(kafka.TopicBookingCancelled, booking)
	return nil
}

func (s *Service) publish(topic string, booking *models.Booking) {
	if s.Kafka == nil {
		return
	}
	payload, err := json.Marshal(booking)
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to marshal booking event: %v", err))
		return
	}
	if err := s.Kafka.Publish(topic, booking.BookingID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s failed: %v", topic, err))
	}
}
