package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/content-service/internal/storage/postgres"
)

// Producer is the thin wrapper document-domain code publishes through. It
// never returns an error to the caller for a transport failure: a failed
// Send is persisted to the failed_events outbox instead, so the document row
// that triggered the event is never left orphaned by a flaky broker.
type Producer struct {
	dispatcher    Dispatcher
	store         *postgres.Store
	localTestMode bool
	logger        *zap.Logger
}

func NewProducer(dispatcher Dispatcher, store *postgres.Store, localTestMode bool, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{dispatcher: dispatcher, store: store, localTestMode: localTestMode, logger: logger.With(zap.String("component", "document-event-producer"))}
}

// Publish serializes payload and sends it keyed by documentID. In
// LOCAL_TEST_MODE the bus is bypassed entirely: the event always lands in the
// outbox first, then a synchronous drain delivers it through the in-process
// dispatcher, so tests never depend on a live broker or a background ticker.
func (p *Producer) Publish(ctx context.Context, topic, documentID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s envelope: %w", topic, err)
	}

	if p.localTestMode {
		return p.publishLocal(ctx, topic, body)
	}

	if err := p.dispatcher.Send(ctx, topic, documentID, body); err == nil {
		return nil
	} else {
		p.logger.Warn("publish failed, writing to outbox for retry",
			zap.String("topic", topic), zap.String("document_id", documentID), zap.Error(err))
	}

	if err := p.store.CreateFailedEvent(ctx, postgres.CreateFailedEventParams{
		ID: uuid.New(), Topic: topic, Payload: body, ErrorMessage: "dispatch failed",
	}); err != nil {
		return fmt.Errorf("events: publish failed and outbox write failed: %w", err)
	}
	return nil
}

func (p *Producer) publishLocal(ctx context.Context, topic string, body []byte) error {
	id := uuid.New()
	if err := p.store.CreateFailedEvent(ctx, postgres.CreateFailedEventParams{
		ID: id, Topic: topic, Payload: body, ErrorMessage: "local_test_mode",
	}); err != nil {
		return fmt.Errorf("events: local test mode outbox write: %w", err)
	}
	return p.DrainOnce(ctx, 16)
}

// RetryTask republishes undelivered outbox rows on a fixed interval. It is
// the only writer that reads failed_events, so multiple content-service
// replicas running it concurrently never double-publish: LockUndeliveredEvents
// uses FOR UPDATE SKIP LOCKED to let each replica claim disjoint rows.
type RetryTask struct {
	store    *postgres.Store
	producer *Producer
	interval time.Duration
	logger   *zap.Logger
}

func NewRetryTask(store *postgres.Store, producer *Producer, interval time.Duration, logger *zap.Logger) *RetryTask {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryTask{store: store, producer: producer, interval: interval, logger: logger.With(zap.String("component", "outbox-retry-task"))}
}

// Run blocks, draining the outbox every interval until ctx is cancelled.
func (t *RetryTask) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := t.producer.DrainOnce(ctx, 50); err != nil {
				t.logger.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// DrainOnce locks up to limit undelivered rows and attempts to republish
// each, marking delivered on success and bumping attempt_count on failure.
// Returns the count successfully delivered.
func (p *Producer) DrainOnce(ctx context.Context, limit int) (int, error) {
	tx, err := p.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("events: begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := p.store.LockUndeliveredEvents(ctx, tx, limit)
	if err != nil {
		return 0, fmt.Errorf("events: lock undelivered events: %w", err)
	}

	delivered := 0
	for _, row := range rows {
		key := documentIDFromPayload(row.Payload)
		if err := p.dispatcher.Send(ctx, row.Topic, key, row.Payload); err != nil {
			p.logger.Warn("outbox retry failed", zap.String("topic", row.Topic), zap.String("event_id", row.ID.String()), zap.Error(err))
			if merr := p.store.BumpEventAttempt(ctx, tx, row.ID); merr != nil {
				return delivered, fmt.Errorf("events: bump attempt: %w", merr)
			}
			continue
		}
		if merr := p.store.MarkEventDelivered(ctx, tx, row.ID); merr != nil {
			return delivered, fmt.Errorf("events: mark delivered: %w", merr)
		}
		delivered++
	}

	if err := tx.Commit(ctx); err != nil {
		return delivered, fmt.Errorf("events: commit outbox tx: %w", err)
	}
	return delivered, nil
}

func documentIDFromPayload(payload []byte) string {
	var envelope struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ""
	}
	return envelope.DocumentID
}
