package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reservation-service/config"
	"reservation-service/internal/api"
	"reservation-service/internal/broker"
	"reservation-service/internal/messaging"
	"reservation-service/internal/payment"
	"reservation-service/internal/redisclient"
	"reservation-service/internal/service"
	"reservation-service/internal/store"
	"reservation-service/internal/util"
	"reservation-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting reservation service")

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReservations)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicReservations))

	eventPublisher := broker.NewEventPublisher(producer)

	var messenger messaging.Messenger = messaging.NewLogMessenger()
	if cfg.Business.MessagingDriver == "amqp" {
		amqpMessenger, err := messaging.NewAMQPMessenger(cfg.RabbitMQ.URL, cfg.RabbitMQ.EmailQueue, cfg.RabbitMQ.SMSQueue)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer amqpMessenger.Close()
		messenger = amqpMessenger
		logger.Info("RabbitMQ messenger initialized")
	}

	payments := payment.NewMockProvider()

	occupancy := service.NewOccupancyService(db, redisClient, cfg.Business.OccupancyCacheTTL)
	availability := service.NewAvailabilityChecker(db)
	pacing := service.NewPacingController(db)
	seating := service.NewSeatingAssigner(db, redisClient, eventPublisher, messenger, occupancy)
	deposits := service.NewDepositLedger(db, payments, eventPublisher)
	policies := service.NewCancellationPolicyEngine(db, payments)
	reservations := service.NewReservationService(
		db, redisClient, eventPublisher, messenger,
		availability, pacing, seating, deposits, policies, occupancy,
		service.BookingOptions{
			LockTTL:                   cfg.Business.BookingLockTTL,
			AutoAssign:                cfg.Business.AutoAssignOnBooking,
			ReconfirmationCutoffHours: cfg.Business.ReconfirmationCutoffHours,
		},
	)
	reconfirmations := service.NewReconfirmationController(db, reservations, messenger, eventPublisher, cfg.Business.ReconfirmationCutoffHours)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	tableConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTableEvents, cfg.Kafka.ConsumerGroup)
	tableWorker := worker.NewTableEventWorker(tableConsumer, seating)
	go func() {
		if err := tableWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Table event worker error", zap.Error(err))
		}
	}()

	reconfirmationWorker := worker.NewReconfirmationWorker(reconfirmations, cfg.Business.ReconfirmationSweep)
	go func() {
		if err := reconfirmationWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Reconfirmation worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Bookings:        reservations,
		Availability:    availability,
		Pacing:          pacing,
		Seating:         seating,
		Deposits:        deposits,
		Policies:        policies,
		Reconfirmations: reconfirmations,
		Occupancy:       occupancy,
	}, cfg.Auth.JWTSecret, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := tableWorker.Stop(); err != nil {
		logger.Warn("Failed to stop table event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
