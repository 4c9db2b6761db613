package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/ksuid"
	"github.com/spotseeker/apiserver/config"
)

// RabbitMQClient publishes to and consumes from one queue per channel.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	durable    bool
	autoDelete bool

	mu       sync.Mutex
	declared map[string]struct{}
}

// NewRabbitMQClient dials cfg.URL and opens a single AMQP channel.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, ch, err := dial(cfg)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: %w", err)
	}
	return &RabbitMQClient{
		conn:       conn,
		channel:    ch,
		durable:    cfg.QueueDurable,
		autoDelete: cfg.QueueAutoDelete,
		declared:   make(map[string]struct{}),
	}, nil
}

func dial(cfg config.RabbitMQConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, err
		}
	}
	return conn, ch, nil
}

// Publish sends data to the queue named channel. attrs travel as AMQP headers;
// the "event" attribute doubles as the message type.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if err := r.ensureQueue(channel); err != nil {
		return "", err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    ksuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Type:         attrs["event"],
		Headers:      make(amqp.Table, len(attrs)),
		Body:         data,
	}
	if r.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	for k, v := range attrs {
		msg.Headers[k] = v
	}

	if err := r.channel.PublishWithContext(ctx, "", channel, false, false, msg); err != nil {
		return "", fmt.Errorf("rabbitmq publish %s: %w", channel, err)
	}
	return msg.MessageId, nil
}

// Subscribe consumes the queue named channel until ctx ends. A delivery whose
// handler fails is requeued once and dropped on the second failure.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if err := r.ensureQueue(channel); err != nil {
		return err
	}

	tag := "identity-" + ksuid.New().String()
	deliveries, err := r.channel.Consume(channel, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume %s: %w", channel, err)
	}
	defer func() { _ = r.channel.Cancel(tag, false) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			deliver(ctx, d, handler)
		}
	}
}

func deliver(ctx context.Context, d amqp.Delivery, handler Handler) {
	msg := Message{ID: d.MessageId, Data: d.Body}
	if len(d.Headers) > 0 {
		msg.Attributes = make(map[string]string, len(d.Headers))
		for k, v := range d.Headers {
			switch typed := v.(type) {
			case string:
				msg.Attributes[k] = typed
			case []byte:
				msg.Attributes[k] = string(typed)
			default:
				msg.Attributes[k] = fmt.Sprint(v)
			}
		}
	}

	if err := handler(ctx, msg); err != nil {
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (r *RabbitMQClient) ensureQueue(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.declared[name]; ok {
		return nil
	}
	if _, err := r.channel.QueueDeclare(name, r.durable, r.autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", name, err)
	}
	r.declared[name] = struct{}{}
	return nil
}

// Close closes the channel, then the connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
