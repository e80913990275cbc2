// Package admin exposes the operator-facing settlement endpoints served by
// the admin gateway: manual mark-paid for out-of-band payments and refunds.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ms-booking/internal/logger"
	"ms-booking/internal/settlement"
	"ms-booking/internal/utils"
)

type Handler struct {
	Service *settlement.Service
	Logger  *logger.Logger
}

func NewHandler(service *settlement.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/bookings/:bookingId/mark-paid", h.MarkPaid)
	r.POST("/bookings/:bookingId/refund", h.Refund)
}

// MarkPaid settles a booking whose payment arrived outside the processor,
// for example a bank transfer. It runs the same exactly-once confirmation as
// the webhook path.
func (h *Handler) MarkPaid(c *gin.Context) {
	bookingID := c.Param("bookingId")
	if bookingID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request", "booking id is required"))
		return
	}

	booking, err := h.Service.MarkPaid(c.Request.Context(), bookingID)
	if err != nil {
		h.Logger.Error("ADMIN", "MarkPaid failed: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to mark booking paid", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Booking settled", booking))
}

// Refund reverses a confirmed booking and restores its inventory.
func (h *Handler) Refund(c *gin.Context) {
	bookingID := c.Param("bookingId")
	if bookingID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request", "booking id is required"))
		return
	}

	if err := h.Service.Refund(c.Request.Context(), bookingID); err != nil {
		h.Logger.Error("ADMIN", "Refund failed: "+err.Error())
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to refund booking", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Booking refunded", gin.H{"booking_id": bookingID}))
}
