package worker

import (
	"context"
	"time"

	"reservation-service/internal/broker"
	"reservation-service/internal/models"
	"reservation-service/internal/service"
	"reservation-service/internal/util"

	"go.uber.org/zap"
)

// TableReleaser completes whatever party is seated at a table
type TableReleaser interface {
	ReleaseTableByPOS(ctx context.Context, tableID string) (*service.ReleaseResult, error)
}

// TableEventWorker consumes point-of-sale table events
type TableEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	releaser     TableReleaser
	logger       *zap.Logger
}

// NewTableEventWorker creates a new table event worker
func NewTableEventWorker(consumer *broker.Consumer, releaser TableReleaser) *TableEventWorker {
	w := &TableEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		releaser:     releaser,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnTableVacated(w.handleTableVacated)
	return w
}

func (w *TableEventWorker) handleTableVacated(ctx context.Context, event *models.TableVacatedEvent) error {
	result, err := w.releaser.ReleaseTableByPOS(ctx, event.TableID)
	if err != nil {
		return err
	}
	if result != nil {
		w.logger.Info("POS released table",
			zap.String("table_id", event.TableID),
			zap.String("reservation_id", result.Reservation.ID))
	}
	return nil
}

// Start starts the worker
func (w *TableEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting table event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *TableEventWorker) Stop() error {
	w.logger.Info("Stopping table event worker")
	return w.consumer.Close()
}

// ReconfirmationSweeper sends reminders and releases unconfirmed bookings
type ReconfirmationSweeper interface {
	SendDueReminders(ctx context.Context) (int, error)
	ProcessExpiredReconfirmations(ctx context.Context) (*service.SweepResult, error)
}

// ReconfirmationWorker runs the reconfirmation sweep on a fixed interval
type ReconfirmationWorker struct {
	sweeper  ReconfirmationSweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewReconfirmationWorker creates a new reconfirmation worker
func NewReconfirmationWorker(sweeper ReconfirmationSweeper, interval time.Duration) *ReconfirmationWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReconfirmationWorker{
		sweeper:  sweeper,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Start sweeps once immediately and then on every tick until ctx is cancelled
func (w *ReconfirmationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconfirmation worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reconfirmation worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce sends due reminders, then cancels expired bookings
func (w *ReconfirmationWorker) RunOnce(ctx context.Context) {
	sent, err := w.sweeper.SendDueReminders(ctx)
	if err != nil {
		w.logger.Error("Reminder pass failed", zap.Error(err))
	} else if sent > 0 {
		w.logger.Info("Reconfirmation reminders sent", zap.Int("count", sent))
	}

	if _, err := w.sweeper.ProcessExpiredReconfirmations(ctx); err != nil {
		w.logger.Error("Expiry pass failed", zap.Error(err))
	}
}
