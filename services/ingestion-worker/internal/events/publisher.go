package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher emits document.processed/document.failed events. It is an
// interface so the pipeline can be tested against an in-process fake
// without a live broker, the way content-service's LocalDispatcher
// substitutes for its KafkaDispatcher.
type Publisher interface {
	PublishProcessed(ctx context.Context, event DocumentProcessed) error
	PublishFailed(ctx context.Context, event DocumentFailed) error
}

// KafkaPublisher emits document.processed/document.failed events over
// Kafka. Unlike content-service's outbox-backed producer, this worker has
// nothing to keep consistent with a local database write: the
// document.uploaded message that triggered this run is only committed
// after the whole pipeline (including this publish) succeeds, so a publish
// failure here simply fails the run and leaves the inbound message to be
// redelivered.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

type PublisherConfig struct {
	Brokers  []string
	ClientID string
}

func NewPublisher(cfg PublisherConfig, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	if cfg.ClientID != "" {
		w.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	return &KafkaPublisher{writer: w, logger: logger.With(zap.String("component", "document-event-publisher"))}
}

func (p *KafkaPublisher) PublishProcessed(ctx context.Context, event DocumentProcessed) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Topic: TopicDocumentProcessed, Key: []byte(event.DocumentID), Value: payload})
}

func (p *KafkaPublisher) PublishFailed(ctx context.Context, event DocumentFailed) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Topic: TopicDocumentFailed, Key: []byte(event.DocumentID), Value: payload})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LocalPublisher bypasses Kafka entirely for LOCAL_TEST_MODE and tests: it
// invokes in-process handlers so callers can observe published events
// without a live broker.
type LocalPublisher struct {
	OnProcessed func(ctx context.Context, event DocumentProcessed) error
	OnFailed    func(ctx context.Context, event DocumentFailed) error
}

func (p *LocalPublisher) PublishProcessed(ctx context.Context, event DocumentProcessed) error {
	if p.OnProcessed == nil {
		return nil
	}
	return p.OnProcessed(ctx, event)
}

func (p *LocalPublisher) PublishFailed(ctx context.Context, event DocumentFailed) error {
	if p.OnFailed == nil {
		return nil
	}
	return p.OnFailed(ctx, event)
}
