package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/ksuid"
	"github.com/spotseeker/apiserver/config"
)

const headerMessageID = "message-id"

// KafkaClient publishes with a shared writer and consumes with a reader per subscription.
type KafkaClient struct {
	writer  *kafka.Writer
	brokers []string
	groupID string
}

func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	return &KafkaClient{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           10 * time.Second,
		},
		brokers: cfg.Brokers,
		groupID: cfg.GroupID,
	}, nil
}

// Publish writes a message to the topic named by channel.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	messageID := ksuid.New().String()
	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: headerMessageID, Value: []byte(messageID)})
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   channel,
		Key:     []byte(attrs["event"]),
		Value:   data,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe reads the topic in the configured consumer group. Offsets are
// committed only after handler succeeds.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.groupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		message := Message{Data: msg.Value, Attributes: make(map[string]string, len(msg.Headers))}
		for _, h := range msg.Headers {
			if h.Key == headerMessageID {
				message.ID = string(h.Value)
				continue
			}
			message.Attributes[h.Key] = string(h.Value)
		}

		if err := handler(ctx, message); err != nil {
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return err
		}
	}
}

func (k *KafkaClient) Close() error {
	return k.writer.Close()
}
