package api

import (
	"errors"
	"net/http"

	"reservation-service/internal/service"
	"reservation-service/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, service.ErrGuaranteeNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrServiceNotFound),
		errors.Is(err, service.ErrZeroDepositAmount),
		errors.Is(err, service.ErrRefundExceedsDeposit),
		errors.Is(err, service.ErrTableCapacity),
		errors.Is(err, service.ErrTableInactive):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrDepositExists),
		errors.Is(err, service.ErrInvalidDepositState),
		errors.Is(err, service.ErrInvalidReservationState),
		errors.Is(err, service.ErrGuaranteeExists),
		errors.Is(err, service.ErrInvalidGuaranteeState),
		errors.Is(err, service.ErrNoPaymentIntent),
		errors.Is(err, service.ErrTableOccupied),
		errors.Is(err, service.ErrNoTableAvailable),
		errors.Is(err, store.ErrConcurrentUpdate),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusBadGateway

	case errors.Is(err, service.ErrSlotBusy):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status its sentinel maps to
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(message,
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
