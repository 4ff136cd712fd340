package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/service"
	"reservation-service/internal/timewindow"
	"reservation-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Bookings drives the reservation lifecycle
type Bookings interface {
	CreateReservation(ctx context.Context, req *service.CreateReservationRequest) (*service.BookingResult, error)
	GetReservation(ctx context.Context, reservationID string) (*service.ReservationDetails, error)
	SeatReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
	CompleteReservation(ctx context.Context, reservationID string) (*service.ReleaseResult, error)
	CancelReservation(ctx context.Context, req service.CancelRequest) (*service.CancelResult, error)
	MarkNoShow(ctx context.Context, reservationID string) (*service.NoShowResult, error)
}

type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, req service.AvailabilityRequest) (*service.AvailabilityResult, error)
}

type PacingReader interface {
	CheckPacing(ctx context.Context, req service.PacingRequest) (*service.PacingResult, error)
	GetPacingStatusForService(ctx context.Context, locationID, date, serviceID string) (*service.PacingStatus, error)
	SuggestOptimalTimeSlots(ctx context.Context, locationID, date, serviceID string, partySize, limit int) ([]service.SlotPacing, error)
}

type Seating interface {
	GetTableRecommendations(ctx context.Context, reservationID string, prefs *service.TablePreferences) ([]service.TableRecommendation, error)
	AssignTable(ctx context.Context, reservationID, tableID string) error
	AutoAssignTable(ctx context.Context, reservationID string) (*service.TableRecommendation, error)
	AutoAssignAllPending(ctx context.Context, locationID, date string) (*service.BulkAssignResult, error)
}

type Deposits interface {
	CreateDeposit(ctx context.Context, reservationID string) (*models.Deposit, error)
	ChargeDeposit(ctx context.Context, depositID string) (*models.Deposit, error)
	RefundDeposit(ctx context.Context, depositID string, amount *int64, reason string) (*models.Deposit, error)
}

type Policies interface {
	GetCancellationPolicyPreview(ctx context.Context, locationID string) (*service.PolicyPreview, error)
	QuoteCancellation(ctx context.Context, reservationID string) (*service.CancellationQuote, error)
	SaveCardGuarantee(ctx context.Context, reservationID, paymentMethodID string) (*models.CardGuarantee, error)
}

type Reconfirmer interface {
	Reconfirm(ctx context.Context, reservationID string) (*models.Reservation, error)
}

type OccupancyReader interface {
	GetOccupancy(ctx context.Context, locationID, date string) (map[string][]timewindow.Interval, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the engine components the HTTP layer calls
type Services struct {
	Bookings        Bookings
	Availability    AvailabilityChecker
	Pacing          PacingReader
	Seating         Seating
	Deposits        Deposits
	Policies        Policies
	Reconfirmations Reconfirmer
	Occupancy       OccupancyReader
}

// Handler contains HTTP handlers
type Handler struct {
	svc       Services
	jwtSecret string
	deps      map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, jwtSecret string, deps map[string]Pinger) *Handler {
	return &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		deps:      deps,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/availability/check", h.checkAvailability)
		v1.POST("/pacing/check", h.checkPacing)
		v1.GET("/pacing/status", h.pacingStatus)
		v1.GET("/pacing/suggestions", h.pacingSuggestions)
		v1.GET("/locations/:id/cancellation-policy", h.policyPreview)

		v1.POST("/reservations", h.createReservation)
		v1.GET("/reservations/:id", h.getReservation)
		v1.POST("/reservations/:id/reconfirm", h.reconfirm)
		v1.GET("/reservations/:id/cancellation-quote", h.cancellationQuote)
		v1.POST("/reservations/:id/cancel", h.cancelReservation)
	}

	staff := v1.Group("/staff", StaffAuth(h.jwtSecret))
	{
		staff.GET("/reservations/:id/table-recommendations", h.tableRecommendations)
		staff.POST("/reservations/:id/assign-table", h.assignTable)
		staff.POST("/reservations/:id/auto-assign", h.autoAssign)
		staff.POST("/reservations/:id/seat", h.seat)
		staff.POST("/reservations/:id/complete", h.complete)
		staff.POST("/reservations/:id/no-show", h.noShow)
		staff.POST("/reservations/:id/deposit", h.createDeposit)
		staff.POST("/reservations/:id/card-guarantee", h.saveCardGuarantee)
		staff.POST("/deposits/:id/charge", h.chargeDeposit)
		staff.POST("/deposits/:id/refund", h.refundDeposit)
		staff.POST("/locations/:id/auto-assign", h.autoAssignAll)
		staff.GET("/locations/:id/occupancy", h.occupancy)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failed": failed})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
