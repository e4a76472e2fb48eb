package event

import (
	"context"
	"encoding/json"

	logapi "go.opentelemetry.io/otel/log"
)

// OTelEmitter records security events on an OpenTelemetry log provider. Used
// when no Kafka brokers are configured so events still reach the collector.
type OTelEmitter struct {
	logger logapi.Logger
}

// NewOTelEmitter returns an emitter writing to the given provider.
func NewOTelEmitter(provider logapi.LoggerProvider) *OTelEmitter {
	return &OTelEmitter{logger: provider.Logger("security-events")}
}

// Emit records the event as one structured log record.
func (e *OTelEmitter) Emit(ctx context.Context, ev *SecurityEvent) error {
	if e == nil || e.logger == nil || ev == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var rec logapi.Record
	rec.SetTimestamp(ev.OccurredAt)
	rec.SetSeverity(logapi.SeverityInfo)
	rec.SetBody(logapi.StringValue(string(payload)))
	rec.AddAttributes(
		logapi.String("event_type", ev.Type),
		logapi.String("cupid", ev.Cupid),
	)
	e.logger.Emit(ctx, rec)
	return nil
}

// Close is a no-op; the log provider owns exporter shutdown.
func (e *OTelEmitter) Close() error { return nil }
