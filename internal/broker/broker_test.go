package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"reservation-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

// scriptedReader replays queued messages, then blocks until the context ends
type scriptedReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func (r *scriptedReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func TestEventPublisher_KeysByReservation(t *testing.T) {
	w := &recordingWriter{}
	publisher := NewEventPublisher(newProducer(w))
	ctx := context.Background()

	require.NoError(t, publisher.PublishReservationEvent(ctx, &models.ReservationEvent{
		BaseEvent:     models.BaseEvent{EventID: "e-1", EventType: models.EventTypeReservationCreated},
		ReservationID: "r-1",
		PartySize:     4,
	}))
	require.NoError(t, publisher.PublishDepositEvent(ctx, &models.DepositEvent{
		BaseEvent:     models.BaseEvent{EventID: "e-2", EventType: models.EventTypeDepositAuthorized},
		DepositID:     "d-1",
		ReservationID: "r-1",
		Amount:        6000,
	}))
	require.NoError(t, publisher.PublishWaitlistEvent(ctx, &models.WaitlistEvent{
		BaseEvent: models.BaseEvent{EventID: "e-3", EventType: models.EventTypeWaitlistNotified},
		EntryID:   "w-1",
	}))

	require.Len(t, w.messages, 3)
	assert.Equal(t, "reservation-r-1", string(w.messages[0].Key))
	assert.Equal(t, "reservation-r-1", string(w.messages[1].Key))
	assert.Equal(t, "waitlist-w-1", string(w.messages[2].Key))

	var decoded models.DepositEvent
	require.NoError(t, json.Unmarshal(w.messages[1].Value, &decoded))
	assert.Equal(t, models.EventTypeDepositAuthorized, decoded.EventType)
	assert.Equal(t, int64(6000), decoded.Amount)
}

func TestProducer_WriteFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := newProducer(w)

	err := p.PublishEvent(context.Background(), "k", map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func vacated(t *testing.T, tableID string) []byte {
	t.Helper()
	b, err := json.Marshal(models.TableVacatedEvent{
		BaseEvent:  models.BaseEvent{EventID: "pos-1", EventType: models.EventTypeTableVacated, Timestamp: time.Now()},
		LocationID: "loc-1",
		TableID:    tableID,
	})
	require.NoError(t, err)
	return b
}

func TestEventHandler_RoutesTableVacated(t *testing.T) {
	h := NewEventHandler()
	var got []string
	h.OnTableVacated(func(ctx context.Context, e *models.TableVacatedEvent) error {
		got = append(got, e.TableID)
		return nil
	})
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, kafka.Message{Value: vacated(t, "t-7")}))
	require.NoError(t, h.HandleMessage(ctx, kafka.Message{Value: []byte(`{"event_type":"MENU_UPDATED"}`)}))
	assert.Error(t, h.HandleMessage(ctx, kafka.Message{Value: []byte(`not json`)}))
	assert.Error(t, h.HandleMessage(ctx, kafka.Message{Value: vacated(t, "")}))

	assert.Equal(t, []string{"t-7"}, got)
}

func vacatedStream(t *testing.T) *scriptedReader {
	return &scriptedReader{queue: []kafka.Message{
		{Offset: 1, Value: vacated(t, "t-1")},
		{Offset: 2, Value: vacated(t, "t-2")},
		{Offset: 3, Value: vacated(t, "t-3")},
	}}
}

// countingHandler fails t-2 the first failures times
type countingHandler struct {
	mu       sync.Mutex
	calls    map[string]int
	failures int
}

func (h *countingHandler) handler() *EventHandler {
	eh := NewEventHandler()
	eh.OnTableVacated(func(ctx context.Context, e *models.TableVacatedEvent) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls[e.TableID]++
		if e.TableID == "t-2" && h.calls[e.TableID] <= h.failures {
			return errors.New("store unavailable")
		}
		return nil
	})
	return eh
}

func (h *countingHandler) count(tableID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[tableID]
}

func TestConsumer_RetriesFailedMessageInPlace(t *testing.T) {
	reader := vacatedStream(t)
	c := newConsumer(reader, "pos.table-events")
	c.retryDelay = time.Millisecond
	h := &countingHandler{calls: map[string]int{}, failures: 2}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, h.handler().HandleMessage) }()

	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int64{1, 2, 3}, reader.committedOffsets())
	assert.Equal(t, 3, h.count("t-2"))
	assert.Equal(t, 1, h.count("t-3"))
}

func TestConsumer_SkipsMessageAfterMaxAttempts(t *testing.T) {
	reader := vacatedStream(t)
	c := newConsumer(reader, "pos.table-events")
	c.retryDelay = time.Millisecond
	c.maxAttempts = 2
	h := &countingHandler{calls: map[string]int{}, failures: 10}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, h.handler().HandleMessage) }()

	require.Eventually(t, func() bool {
		return h.count("t-3") == 1 && len(reader.committedOffsets()) == 3
	}, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 2, h.count("t-2"))
	assert.Equal(t, []int64{1, 2, 3}, reader.committedOffsets())
}

func TestConsumer_CancelDuringRetryLeavesMessageUncommitted(t *testing.T) {
	reader := vacatedStream(t)
	c := newConsumer(reader, "pos.table-events")
	c.retryDelay = time.Hour
	h := &countingHandler{calls: map[string]int{}, failures: 10}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, h.handler().HandleMessage) }()

	require.Eventually(t, func() bool {
		return h.count("t-2") == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []int64{1}, reader.committedOffsets())
	assert.Equal(t, 0, h.count("t-3"))
}
