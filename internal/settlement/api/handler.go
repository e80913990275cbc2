package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/logger"
	"ms-booking/internal/settlement"
)

type Handler struct {
	Service       *settlement.Service
	Logger        *logger.Logger
	WebhookSecret string
}

func NewHandler(service *settlement.Service, log *logger.Logger, webhookSecret string) *Handler {
	return &Handler{Service: service, Logger: log, WebhookSecret: webhookSecret}
}

// CreatePaymentIntent opens a payment intent for a pending booking and returns
// the client secret for the frontend to complete payment.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: bookingId=%s", bookingID))

	if bookingID == "" {
		http.Error(w, "Booking ID is required", http.StatusBadRequest)
		return
	}

	intent, err := h.Service.CreatePaymentIntent(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: %v", err))
		if errors.Is(err, settlement.ErrBookingNotPending) {
			http.Error(w, "Booking is not pending", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create payment intent: "+err.Error(), http.StatusInternalServerError)
		return
	}

	response := struct {
		ClientSecret    string `json:"clientSecret"`
		PaymentIntentID string `json:"paymentIntentId"`
	}{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: failed to encode response: %v", err))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: intent created for booking %s", bookingID))
}

// StripeWebhook receives settlement events from Stripe.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	if err := h.Service.HandleStripeWebhook(r, h.WebhookSecret); err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: %v", err))

		var webhookErr *settlement.WebhookError
		if errors.As(err, &webhookErr) {
			http.Error(w, webhookErr.PublicError, webhookErr.StatusCode)
			return
		}
		http.Error(w, "Webhook processing error", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}
