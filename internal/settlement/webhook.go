package settlement

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// WebhookError classifies webhook failures so the HTTP layer can pick a
// status code without leaking internals to the caller.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

func (e *WebhookError) Unwrap() error {
	return e.OriginalErr
}

// HandleStripeWebhook verifies the event signature and dispatches settlement
// transitions. Stripe retries deliveries, so every path through here must be
// safe to replay.
func (s *Service) HandleStripeWebhook(r *http.Request, webhookSecret string) error {
	if webhookSecret == "" {
		s.Logger.Error("WEBHOOK", "stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret, opts)
	if err != nil {
		s.Logger.Error("WEBHOOK", fmt.Sprintf("signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook signature",
			InternalError: fmt.Sprintf("signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.Logger.Info("WEBHOOK", fmt.Sprintf("processing stripe event: %s", event.Type))

	switch event.Type {
	case "payment_intent.succeeded":
		intent, werr := unmarshalIntent(event)
		if werr != nil {
			return werr
		}
		if err := s.settleFromIntent(r, intent); err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to process payment",
				InternalError: fmt.Sprintf("settlement for intent %s failed: %v", intent.ID, err),
				OriginalErr:   err,
			}
		}

	case "payment_intent.payment_failed":
		intent, werr := unmarshalIntent(event)
		if werr != nil {
			return werr
		}
		reason := "payment failed"
		if intent.LastPaymentError != nil {
			reason = intent.LastPaymentError.Msg
		}
		bookingID := intent.Metadata["booking_id"]
		if bookingID == "" {
			booking, err := s.Store.GetBookingByPaymentIntent(r.Context(), intent.ID)
			if err != nil {
				s.Logger.Warn("WEBHOOK", fmt.Sprintf("failed intent %s has no booking, ignoring", intent.ID))
				return nil
			}
			bookingID = booking.BookingID
		}
		if err := s.FailPayment(r.Context(), bookingID, reason); err != nil {
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Failed to record payment failure",
				InternalError: fmt.Sprintf("fail transition for booking %s: %v", bookingID, err),
				OriginalErr:   err,
			}
		}

	case "charge.dispute.created":
		// Disputes are handled manually. Log and acknowledge so Stripe
		// stops retrying.
		s.Logger.Warn("WEBHOOK", fmt.Sprintf("dispute opened, event id %s", event.ID))

	default:
		s.Logger.Debug("WEBHOOK", fmt.Sprintf("ignoring event type %s", event.Type))
	}

	return nil
}

func (s *Service) settleFromIntent(r *http.Request, intent *stripe.PaymentIntent) error {
	if bookingID := intent.Metadata["booking_id"]; bookingID != "" {
		_, err := s.ConfirmBooking(r.Context(), bookingID)
		return err
	}
	_, err := s.ConfirmByPaymentIntent(r.Context(), intent.ID)
	return err
}

func unmarshalIntent(event stripe.Event) (*stripe.PaymentIntent, *WebhookError) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, &WebhookError{
			Category:      "processing",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("failed to unmarshal payment intent: %v", err),
			OriginalErr:   err,
		}
	}
	return &intent, nil
}
