package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"reservation-service/internal/util"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Job is the payload enqueued for the delivery workers
type Job struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

var errEmptyRecipient = errors.New("empty recipient")

// AMQPMessenger enqueues email and SMS jobs onto durable RabbitMQ queues
type AMQPMessenger struct {
	url        string
	emailQueue string
	smsQueue   string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

// NewAMQPMessenger dials the broker and declares both queues
func NewAMQPMessenger(url, emailQueue, smsQueue string) (*AMQPMessenger, error) {
	m := &AMQPMessenger{
		url:        url,
		emailQueue: emailQueue,
		smsQueue:   smsQueue,
		logger:     util.GetLogger(),
	}
	if err := m.connect(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *AMQPMessenger) connect() error {
	conn, err := amqp.Dial(m.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("rabbitmq channel open failed: %w", err)
	}

	for _, q := range []string{m.emailQueue, m.smsQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("rabbitmq queue declare %s failed: %w", q, err)
		}
	}

	m.conn = conn
	m.ch = ch
	return nil
}

// SendEmail enqueues an email job
func (m *AMQPMessenger) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.publish(ctx, m.emailQueue, Job{Channel: ChannelEmail, To: to, Subject: subject, Body: body})
}

// SendSMS enqueues an SMS job
func (m *AMQPMessenger) SendSMS(ctx context.Context, to, body string) error {
	return m.publish(ctx, m.smsQueue, Job{Channel: ChannelSMS, To: to, Body: body})
}

func (m *AMQPMessenger) publish(ctx context.Context, queue string, job Job) error {
	if job.To == "" {
		return errEmptyRecipient
	}
	job.ID = uuid.New().String()
	job.CreatedAt = time.Now().UTC()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal %s job: %w", job.Channel, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch == nil || m.ch.IsClosed() {
		if m.conn != nil {
			_ = m.conn.Close()
		}
		if err := m.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = m.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    job.CreatedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish to %s failed: %w", queue, err)
	}

	m.logger.Debug("Enqueued notification",
		zap.String("channel", job.Channel),
		zap.String("job_id", job.ID))
	return nil
}

// Close closes the channel and connection
func (m *AMQPMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
