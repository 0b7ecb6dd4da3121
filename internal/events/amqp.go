package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Forwarder copies bus events into a durable RabbitMQ queue. The connection is
// opened lazily and reopened after a failed publish.
type Forwarder struct {
	url    string
	queue  string
	logger zerolog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   amqpChannel
	open func() (amqpChannel, error)
}

// NewForwarder creates a forwarder publishing to queue on the broker at url.
func NewForwarder(url, queue string, logger *zerolog.Logger) *Forwarder {
	f := &Forwarder{
		url:    url,
		queue:  queue,
		logger: logger.With().Str("component", "amqp").Logger(),
	}
	f.open = f.dial
	return f
}

func (f *Forwarder) dial() (amqpChannel, error) {
	conn, err := amqp.Dial(f.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	f.conn = conn
	return ch, nil
}

func (f *Forwarder) channel() (amqpChannel, error) {
	if f.ch != nil {
		return f.ch, nil
	}
	ch, err := f.open()
	if err != nil {
		return nil, err
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(f.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		f.closeConn()
		return nil, fmt.Errorf("declare queue %s: %w", f.queue, err)
	}
	f.ch = ch
	return ch, nil
}

// Handle is an EventHandler that forwards the event payload.
func (f *Forwarder) Handle(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch, err := f.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx, "", f.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         event.Type,
		Timestamp:    event.CreatedAt.UTC(),
		Body:         event.Payload,
	})
	if err != nil {
		f.resetLocked()
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}

	f.logger.Debug().Str("type", event.Type).Str("event_id", event.ID).Msg("event forwarded")
	return nil
}

// Close releases the broker connection.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
	return nil
}

func (f *Forwarder) resetLocked() {
	if f.ch != nil {
		_ = f.ch.Close()
		f.ch = nil
	}
	f.closeConn()
}

func (f *Forwarder) closeConn() {
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}
