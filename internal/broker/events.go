package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"reservation-service/internal/models"
	"reservation-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes reservation domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func reservationKey(reservationID string) string {
	return fmt.Sprintf("reservation-%s", reservationID)
}

// PublishReservationEvent publishes a reservation lifecycle event
func (ep *EventPublisher) PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	return ep.producer.PublishEvent(ctx, reservationKey(event.ReservationID), event)
}

// PublishDepositEvent publishes a deposit event on the owning reservation's key
func (ep *EventPublisher) PublishDepositEvent(ctx context.Context, event *models.DepositEvent) error {
	return ep.producer.PublishEvent(ctx, reservationKey(event.ReservationID), event)
}

// PublishWaitlistEvent publishes a waitlist offer
func (ep *EventPublisher) PublishWaitlistEvent(ctx context.Context, event *models.WaitlistEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("waitlist-%s", event.EntryID), event)
}

// EventHandler routes inbound point-of-sale events
type EventHandler struct {
	onTableVacated func(context.Context, *models.TableVacatedEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnTableVacated registers a handler for TableVacated events
func (eh *EventHandler) OnTableVacated(handler func(context.Context, *models.TableVacatedEvent) error) {
	eh.onTableVacated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeTableVacated:
		if eh.onTableVacated != nil {
			var event models.TableVacatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal TableVacated event: %w", err)
			}
			if event.TableID == "" {
				return fmt.Errorf("TableVacated event %s has no table_id", event.EventID)
			}
			return eh.onTableVacated(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
