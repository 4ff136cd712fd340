package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AvailabilityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "availability_checks_total",
		Help: "Total number of availability checks by outcome code",
	}, []string{"code"})

	PacingRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pacing_rejections_total",
		Help: "Total number of booking requests rejected by pacing",
	})

	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of reservations accepted",
	})

	ReservationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservations_rejected_total",
		Help: "Total number of booking requests rejected",
	}, []string{"code"})

	BookingLockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_lock_contention_total",
		Help: "Total number of booking attempts that could not take the slot lock",
	})

	TablesAssignedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tables_assigned_total",
		Help: "Total number of table assignments",
	}, []string{"mode"})

	AutoAssignFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auto_assign_failures_total",
		Help: "Total number of reservations the bulk auto-assignment could not seat",
	})

	DepositTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deposit_transitions_total",
		Help: "Total number of deposit state transitions",
	}, []string{"status"})

	PaymentProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reservation_cancellations_total",
		Help: "Total number of cancellations by financial outcome",
	}, []string{"outcome"})

	NoShowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservation_no_shows_total",
		Help: "Total number of reservations marked no-show",
	})

	GuestsBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guests_blocked_total",
		Help: "Total number of guest profiles auto-blocked for repeated no-shows",
	})

	ReconfirmationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconfirmations_expired_total",
		Help: "Total number of reservations cancelled for missing reconfirmation",
	})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of email/SMS deliveries that failed to enqueue",
	}, []string{"channel"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
