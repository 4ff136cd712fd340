package api

import (
	"net/http"
	"strconv"

	"reservation-service/internal/service"

	"github.com/gin-gonic/gin"
)

const defaultSuggestionLimit = 3

// checkAvailability answers whether a party can be booked at a time
func (h *Handler) checkAvailability(c *gin.Context) {
	var req service.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.svc.Availability.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to check availability", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) checkPacing(c *gin.Context) {
	var req service.PacingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	result, err := h.svc.Pacing.CheckPacing(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to check pacing", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type serviceQuery struct {
	LocationID string `form:"location_id" binding:"required"`
	Date       string `form:"date" binding:"required"`
	ServiceID  string `form:"service_id" binding:"required"`
	PartySize  int    `form:"party_size"`
	Limit      int    `form:"limit"`
}

func (h *Handler) pacingStatus(c *gin.Context) {
	var q serviceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Invalid query", err)
		return
	}

	status, err := h.svc.Pacing.GetPacingStatusForService(c.Request.Context(), q.LocationID, q.Date, q.ServiceID)
	if err != nil {
		h.respondError(c, "Failed to get pacing status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) pacingSuggestions(c *gin.Context) {
	var q serviceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "Invalid query", err)
		return
	}
	if q.PartySize < 1 {
		badRequest(c, "party_size must be at least 1", nil)
		return
	}
	if q.Limit <= 0 {
		q.Limit = defaultSuggestionLimit
	}

	slots, err := h.svc.Pacing.SuggestOptimalTimeSlots(c.Request.Context(), q.LocationID, q.Date, q.ServiceID, q.PartySize, q.Limit)
	if err != nil {
		h.respondError(c, "Failed to suggest time slots", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

func (h *Handler) policyPreview(c *gin.Context) {
	preview, err := h.svc.Policies.GetCancellationPolicyPreview(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to load cancellation policy", err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// createReservation books a table. Capacity rejections come back as 409 with the
// rejection code, a replayed idempotency key as 200 with the original booking.
func (h *Handler) createReservation(c *gin.Context) {
	var req service.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	result, err := h.svc.Bookings.CreateReservation(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to create reservation", err)
		return
	}

	switch {
	case !result.Accepted:
		c.JSON(http.StatusConflict, result)
	case result.Duplicate:
		c.JSON(http.StatusOK, result)
	default:
		c.JSON(http.StatusCreated, result)
	}
}

func (h *Handler) getReservation(c *gin.Context) {
	details, err := h.svc.Bookings.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Reservation not found", err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) reconfirm(c *gin.Context) {
	r, err := h.svc.Reconfirmations.Reconfirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to reconfirm reservation", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) cancellationQuote(c *gin.Context) {
	quote, err := h.svc.Policies.QuoteCancellation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to quote cancellation", err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) cancelReservation(c *gin.Context) {
	req := service.CancelRequest{Notify: true}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	req.ReservationID = c.Param("id")
	if req.Reason == "" {
		req.Reason = "guest request"
	}

	result, err := h.svc.Bookings.CancelReservation(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "Failed to cancel reservation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
