package events

import (
	"context"
	"net"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Dispatcher sends a single event to the bus, keyed so a document's events
// never land on different partitions.
type Dispatcher interface {
	Send(ctx context.Context, topic, key string, payload []byte) error
}

// KafkaDispatcher owns one writer per topic, each balanced by kafka.Hash so
// every event for a given document_id key lands on the same partition and is
// never reordered relative to that document's other events.
type KafkaDispatcher struct {
	addr     net.Addr
	clientID string
	writers  map[string]*kafka.Writer
	logger   *zap.Logger
}

// KafkaDispatcherConfig configures the per-topic writers.
type KafkaDispatcherConfig struct {
	Brokers  []string
	Topics   []string
	ClientID string
}

func NewKafkaDispatcher(cfg KafkaDispatcherConfig, logger *zap.Logger) *KafkaDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &KafkaDispatcher{
		addr:     kafka.TCP(cfg.Brokers...),
		clientID: cfg.ClientID,
		writers:  make(map[string]*kafka.Writer, len(cfg.Topics)),
		logger:   logger.With(zap.String("component", "document-event-dispatcher")),
	}
	for _, topic := range cfg.Topics {
		d.writers[topic] = d.newWriter(topic)
	}
	return d
}

func (d *KafkaDispatcher) newWriter(topic string) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         d.addr,
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	if d.clientID != "" {
		w.Transport = &kafka.Transport{ClientID: d.clientID}
	}
	return w
}

func (d *KafkaDispatcher) Send(ctx context.Context, topic, key string, payload []byte) error {
	writer, ok := d.writers[topic]
	if !ok {
		writer = d.newWriter(topic)
		d.writers[topic] = writer
	}
	return writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (d *KafkaDispatcher) Close() error {
	var firstErr error
	for _, w := range d.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LocalDispatcher bypasses Kafka entirely for LOCAL_TEST_MODE. It invokes an
// in-process handler registered per topic so integration tests can observe
// published events without a live broker.
type LocalDispatcher struct {
	handlers map[string]func(ctx context.Context, key string, payload []byte) error
}

func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{handlers: make(map[string]func(context.Context, string, []byte) error)}
}

// Handle registers fn to receive events published to topic. Tests typically
// use this to assert on the envelope without a broker.
func (d *LocalDispatcher) Handle(topic string, fn func(ctx context.Context, key string, payload []byte) error) {
	d.handlers[topic] = fn
}

func (d *LocalDispatcher) Send(ctx context.Context, topic, key string, payload []byte) error {
	fn, ok := d.handlers[topic]
	if !ok {
		return nil
	}
	return fn(ctx, key, payload)
}
