package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/pricing"
	"ms-booking/internal/utils"
)

type Handler struct {
	Service *booking.Service
	Logger  *logger.Logger
}

func NewHandler(service *booking.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings/reference/{reference}", h.GetBookingByReference)
	r.Get("/bookings/{bookingId}", h.GetBooking)
	r.Delete("/bookings/{bookingId}", h.CancelBooking)
	r.Get("/customers/{email}/bookings", h.ListBookingsByCustomer)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if uid := auth.UserID(r.Context()); uid != "" {
		h.Logger.Info("API", fmt.Sprintf("CreateBooking: request from subject %s", uid))
	} else {
		h.Logger.Info("API", "CreateBooking: received request")
	}

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.CodedErrorResponse(booking.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	result, err := h.Service.CreateBooking(r.Context(), req)
	if err != nil {
		code := booking.ErrorCode(err)
		status := statusForCode(code)
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteJSON(w, status, utils.CodedErrorResponse(code, "Booking rejected", err.Error()))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateBooking: created %s", result.Booking.BookingReference))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", result))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("GetBooking: bookingId=%s", bookingID))

	result, err := h.Service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking: %v", err))
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", result))
}

// GetBookingByReference looks a booking up by the human-readable reference
// printed on tickets and confirmation emails.
func (h *Handler) GetBookingByReference(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	h.Logger.Info("API", fmt.Sprintf("GetBookingByReference: reference=%s", reference))

	result, err := h.Service.GetBookingByReference(r.Context(), reference)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBookingByReference: %v", err))
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking not found", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", result))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingId=%s", bookingID))

	if err := h.Service.CancelBooking(r.Context(), bookingID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelBooking: %v", err))
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Could not cancel booking", err.Error()))
		return
	}

	h.Logger.Info("API", "CancelBooking: booking cancelled successfully")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBookingsByCustomer(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	h.Logger.Info("API", fmt.Sprintf("ListBookingsByCustomer: email=%s", email))

	if email == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Email is required", ""))
		return
	}

	bookings, err := h.Service.ListBookingsByCustomer(r.Context(), email)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListBookingsByCustomer: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to retrieve bookings", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved", bookings))
}

func statusForCode(code string) int {
	switch code {
	case booking.CodeEventNotFound:
		return http.StatusNotFound
	case booking.CodeEventNotOpen, booking.CodeDeadlinePassed, booking.CodeEventInPast:
		return http.StatusConflict
	case pricing.CodeNoPricingAvailable, pricing.CodeOptionNotFound:
		return http.StatusNotFound
	case pricing.CodeOptionUnavailable, pricing.CodeInsufficientQuantity:
		return http.StatusConflict
	case booking.CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
