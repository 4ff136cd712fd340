package api

import (
	"net/http"

	"reservation-service/internal/service"
	"reservation-service/internal/timewindow"

	"github.com/gin-gonic/gin"
)

func (h *Handler) tableRecommendations(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		badRequest(c, "Invalid limit", err)
		return
	}
	prefs := &service.TablePreferences{ZoneID: c.Query("zone_id"), Limit: limit}

	recs, err := h.svc.Seating.GetTableRecommendations(c.Request.Context(), c.Param("id"), prefs)
	if err != nil {
		h.respondError(c, "Failed to recommend tables", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

type assignTableRequest struct {
	TableID string `json:"table_id" binding:"required"`
}

func (h *Handler) assignTable(c *gin.Context) {
	var req assignTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if err := h.svc.Seating.AssignTable(c.Request.Context(), c.Param("id"), req.TableID); err != nil {
		h.respondError(c, "Failed to assign table", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reservation_id": c.Param("id"), "table_id": req.TableID})
}

func (h *Handler) autoAssign(c *gin.Context) {
	table, err := h.svc.Seating.AutoAssignTable(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to auto-assign table", err)
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) autoAssignAll(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		badRequest(c, "date is required", nil)
		return
	}

	result, err := h.svc.Seating.AutoAssignAllPending(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.respondError(c, "Failed to auto-assign reservations", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) seat(c *gin.Context) {
	r, err := h.svc.Bookings.SeatReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to seat reservation", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) complete(c *gin.Context) {
	result, err := h.svc.Bookings.CompleteReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to release table", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) noShow(c *gin.Context) {
	result, err := h.svc.Bookings.MarkNoShow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to mark no-show", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) createDeposit(c *gin.Context) {
	d, err := h.svc.Deposits.CreateDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to create deposit", err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) chargeDeposit(c *gin.Context) {
	d, err := h.svc.Deposits.ChargeDeposit(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to charge deposit", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type refundRequest struct {
	Amount *int64 `json:"amount,omitempty"`
	Reason string `json:"reason"`
}

func (h *Handler) refundDeposit(c *gin.Context) {
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body", err)
			return
		}
	}
	if req.Amount != nil && *req.Amount <= 0 {
		badRequest(c, "amount must be positive", nil)
		return
	}

	d, err := h.svc.Deposits.RefundDeposit(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		h.respondError(c, "Failed to refund deposit", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type cardGuaranteeRequest struct {
	PaymentMethodID string `json:"payment_method_id" binding:"required"`
}

func (h *Handler) saveCardGuarantee(c *gin.Context) {
	var req cardGuaranteeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	g, err := h.svc.Policies.SaveCardGuarantee(c.Request.Context(), c.Param("id"), req.PaymentMethodID)
	if err != nil {
		h.respondError(c, "Failed to save card guarantee", err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

type occupiedSpan struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// occupancy shows each table's booked spans as clock times
func (h *Handler) occupancy(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		badRequest(c, "date is required", nil)
		return
	}

	byTable, err := h.svc.Occupancy.GetOccupancy(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		h.respondError(c, "Failed to load occupancy", err)
		return
	}

	view := make(map[string][]occupiedSpan, len(byTable))
	for tableID, intervals := range byTable {
		spans := make([]occupiedSpan, 0, len(intervals))
		for _, iv := range intervals {
			spans = append(spans, occupiedSpan{
				Start: timewindow.FormatClock(iv.Start),
				End:   timewindow.FormatClock(iv.End),
			})
		}
		view[tableID] = spans
	}
	c.JSON(http.StatusOK, gin.H{"location_id": c.Param("id"), "date": date, "tables": view})
}
