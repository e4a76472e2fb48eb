package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// emitTimeout is the max time allowed for a single async emit. Used by
// EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops
// before closing the emitter, so in-flight async emits have time to complete.
const ShutdownDrainDuration = emitTimeout

// Emitter publishes security events. Callers use it best-effort: log and
// ignore errors.
type Emitter interface {
	Emit(ctx context.Context, e *SecurityEvent) error
	Close() error
}

// KafkaEmitter implements Emitter using segmentio/kafka-go.
type KafkaEmitter struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewKafkaEmitter creates a Kafka emitter writing to the given topic. Returns
// (nil, nil) when brokers or topic are unset, which disables emission. Call
// Close when shutting down.
func NewKafkaEmitter(brokers []string, topic string, log zerolog.Logger) (*KafkaEmitter, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaEmitter{writer: writer, log: log}, nil
}

// Emit serializes the event as JSON and writes it to the topic. The cupid is
// the message key so one user's events stay ordered within a partition.
func (e *KafkaEmitter) Emit(ctx context.Context, ev *SecurityEvent) error {
	if e == nil || e.writer == nil || ev == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var key []byte
	if ev.Cupid != "" {
		key = []byte(ev.Cupid)
	}
	writeCtx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()
	if err := e.writer.WriteMessages(writeCtx, kafka.Message{Key: key, Value: payload}); err != nil {
		e.log.Error().Err(err).Str("type", ev.Type).Msg("security event emit failed")
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (e *KafkaEmitter) Close() error {
	if e == nil || e.writer == nil {
		return nil
	}
	return e.writer.Close()
}

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is
// not blocked. Emitter and event may be nil; then nothing happens. The
// goroutine uses context.Background() so request cancellation does not abort
// an in-flight emit.
func EmitAsync(emitter Emitter, ev *SecurityEvent) {
	if emitter == nil || ev == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		_ = emitter.Emit(ctx, ev)
	}()
}
