package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/otherjamesbrown/ai-aas/services/ingestion-worker/internal/events"
)

// Worker bridges the document.uploaded topic to the Processor. It runs
// maxConcurrent independent consumers in the same group so Kafka spreads
// partitions across them; each consumer still processes its own partition
// strictly in order and commits offsets only after Process succeeds.
type Worker struct {
	consumers []*events.Consumer
	logger    *zap.Logger
}

func NewWorker(brokers []string, groupID string, processor *Processor, maxConcurrent int, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	handle := func(ctx context.Context, key string, payload []byte) error {
		var evt events.DocumentUploaded
		if err := json.Unmarshal(payload, &evt); err != nil {
			return fmt.Errorf("decode document.uploaded envelope: %w", err)
		}
		return processor.Process(ctx, evt)
	}

	consumers := make([]*events.Consumer, maxConcurrent)
	for i := range consumers {
		consumers[i] = events.NewConsumer(events.ConsumerConfig{
			Brokers: brokers,
			Topic:   events.TopicDocumentUploaded,
			GroupID: groupID,
		}, handle, logger)
	}
	return &Worker{consumers: consumers, logger: logger.With(zap.String("component", "ingestion-worker"))}
}

// Run blocks until ctx is cancelled, fanning the configured concurrency out
// across independent consumer instances in the same group.
func (w *Worker) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i, c := range w.consumers {
		wg.Add(1)
		go func(i int, c *events.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				w.logger.Error("consumer stopped", zap.Int("worker", i), zap.Error(err))
			}
		}(i, c)
	}
	wg.Wait()
	return nil
}

func (w *Worker) Close() error {
	var firstErr error
	for _, c := range w.consumers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
