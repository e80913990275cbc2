package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/settlement/store"
)

// ErrBookingNotPending is returned when a transition needs a pending booking
// and the record has already moved on.
var ErrBookingNotPending = errors.New("booking is not pending")

// Store is the settlement persistence surface.
type Store interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error)
	Confirm(ctx context.Context, bookingID string) (*store.Outcome, error)
	Fail(ctx context.Context, bookingID string) error
	Refund(ctx context.Context, bookingID string) (*store.Outcome, error)
}

// Notifier enqueues customer-facing messages after a settlement transition.
type Notifier interface {
	EnqueueBookingConfirmed(ctx context.Context, booking *models.Booking) error
	EnqueueBookingRefunded(ctx context.Context, booking *models.Booking) error
}

type Publisher interface {
	Publish(topic string, key string, value []byte) error
}

// IntentAttacher records the processor reference on the booking row.
type IntentAttacher interface {
	SetPaymentIntent(ctx context.Context, bookingID, intentID string) error
}

type Service struct {
	Store    Store
	Attacher IntentAttacher
	Notifier Notifier
	Kafka    Publisher
	Logger   *logger.Logger
	Currency string
}

func NewService(store Store, attacher IntentAttacher, notifier Notifier, kafka Publisher, log *logger.Logger) *Service {
	return &Service{
		Store:    store,
		Attacher: attacher,
		Notifier: notifier,
		Kafka:    kafka,
		Logger:   log,
		Currency: "usd",
	}
}

// InitStripe sets the global API key for the Stripe client.
func InitStripe(secretKey string) {
	stripe.Key = secretKey
}

// CreatePaymentIntent opens a Stripe payment intent for a pending booking and
// records its ID on the booking. Calling it again for the same booking reuses
// the existing intent while it is still payable.
func (s *Service) CreatePaymentIntent(ctx context.Context, bookingID string) (*stripe.PaymentIntent, error) {
	s.Logger.LogSettlement("INTENT", bookingID, "creating payment intent")

	booking, err := s.Store.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking %s not found: %w", bookingID, err)
	}
	if booking.BookingStatus != models.BookingPending {
		return nil, ErrBookingNotPending
	}

	if booking.PaymentIntentID != "" {
		intent, err := paymentintent.Get(booking.PaymentIntentID, nil)
		if err == nil && intent.Status != stripe.PaymentIntentStatusCanceled && intent.Status != stripe.PaymentIntentStatusSucceeded {
			s.Logger.LogSettlement("INTENT", bookingID, fmt.Sprintf("reusing intent %s (%s)", intent.ID, intent.Status))
			return intent, nil
		}
		if err != nil {
			s.Logger.Warn("SETTLEMENT", fmt.Sprintf("could not retrieve intent %s, creating a new one: %v", booking.PaymentIntentID, err))
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(booking.TotalPrice * 100)),
		Currency: stripe.String(s.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("booking_id", booking.BookingID)
	params.AddMetadata("booking_reference", booking.BookingReference)

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.Attacher.SetPaymentIntent(ctx, booking.BookingID, intent.ID); err != nil {
		return nil, fmt.Errorf("failed to record payment intent: %w", err)
	}

	s.Logger.LogSettlement("INTENT", bookingID, fmt.Sprintf("created intent %s for %.2f", intent.ID, booking.TotalPrice))
	return intent, nil
}

// ConfirmBooking settles a booking after payment. The store makes it
// exactly-once; when the transition was a replay this logs and returns the
// already-settled booking without side effects.
func (s *Service) ConfirmBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	out, err := s.Store.Confirm(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !out.Applied {
		booking, err := s.Store.GetBookingByID(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("booking %s not found: %w", bookingID, err)
		}
		s.Logger.LogSettlement("CONFIRM", booking.BookingReference, "already settled, skipping")
		return booking, nil
	}

	booking := out.Booking
	s.Logger.LogSettlement("CONFIRM", booking.BookingReference,
		fmt.Sprintf("confirmed %d tickets for event %s", booking.Quantity, booking.EventID))

	if s.Notifier != nil {
		if err := s.Notifier.EnqueueBookingConfirmed(ctx, booking); err != nil {
			s.Logger.Warn("SETTLEMENT", fmt.Sprintf("failed to enqueue confirmation notice for %s: %v", booking.BookingReference, err))
		}
	}
	s.publish(kafka.TopicBookingConfirmed, booking)
	return booking, nil
}

// ConfirmByPaymentIntent resolves the booking from the processor reference
// before confirming. Used by the webhook when metadata is missing.
func (s *Service) ConfirmByPaymentIntent(ctx context.Context, intentID string) (*models.Booking, error) {
	booking, err := s.Store.GetBookingByPaymentIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no booking for payment intent %s", intentID)
		}
		return nil, err
	}
	return s.ConfirmBooking(ctx, booking.BookingID)
}

// FailPayment records a failed attempt. The reservation stays alive so the
// customer can retry with another method until it expires.
func (s *Service) FailPayment(ctx context.Context, bookingID, reason string) error {
	if err := s.Store.Fail(ctx, bookingID); err != nil {
		return err
	}
	s.Logger.LogSettlement("FAIL", bookingID, fmt.Sprintf("payment failed: %s", reason))
	return nil
}

// Refund reverses a confirmed booking and restores its inventory.
func (s *Service) Refund(ctx context.Context, bookingID string) error {
	out, err := s.Store.Refund(ctx, bookingID)
	if err != nil {
		return err
	}
	if !out.Applied {
		s.Logger.LogSettlement("REFUND", bookingID, "booking not confirmed, nothing to refund")
		return nil
	}

	booking := out.Booking
	s.Logger.LogSettlement("REFUND", booking.BookingReference,
		fmt.Sprintf("refunded %d tickets for event %s", booking.Quantity, booking.EventID))

	if s.Notifier != nil {
		if err := s.Notifier.EnqueueBookingRefunded(ctx, booking); err != nil {
			s.Logger.Warn("SETTLEMENT", fmt.Sprintf("failed to enqueue refund notice for %s: %v", booking.BookingReference, err))
		}
	}
	s.publish(kafka.TopicBookingRefunded, booking)
	return nil
}

// MarkPaid is the manual settlement path for out-of-band payments. It runs
// the same confirmation core as the webhook.
func (s *Service) MarkPaid(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.ConfirmBooking(ctx, bookingID)
}

func (s *Service) publish(topic string, booking *models.Booking) {
	if s.Kafka == nil {
		return
	}
	payload, err := json.Marshal(booking)
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to marshal settlement event: %v", err))
		return
	}
	if err := s.Kafka.Publish(topic, booking.BookingID, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("publish %s failed: %v", topic, err))
	}
}
