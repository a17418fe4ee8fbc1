package events

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer reads one topic and hands each message to a handler. Offset
// commits happen only after the handler returns without error, so a crash
// mid-processing redelivers the message rather than silently dropping it.
type Consumer struct {
	reader  *kafka.Reader
	handler func(ctx context.Context, key string, payload []byte) error
	logger  *zap.Logger
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewConsumer(cfg ConsumerConfig, handler func(ctx context.Context, key string, payload []byte) error, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
	return &Consumer{reader: reader, handler: handler, logger: logger.With(zap.String("component", "document-event-consumer"), zap.String("topic", cfg.Topic))}
}

// Run blocks, fetching and handling messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			continue
		}

		if err := c.handler(ctx, string(msg.Key), msg.Value); err != nil {
			c.logger.Error("handler failed, message left uncommitted for redelivery", zap.Error(err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit offset failed", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
