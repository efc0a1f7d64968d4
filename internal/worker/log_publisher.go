package worker

import (
	"context"

	"github.com/rs/zerolog"

	"beacon/internal/logger"
	"beacon/internal/models"
)

// LogPublisher writes envelopes to the structured log. It stands in for
// Kafka when no brokers are configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: logger.WithComponent("events")}
}

func (p *LogPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := envelope.Event
	e := p.log.Info()
	switch ev.Level {
	case models.LevelWarning:
		e = p.log.Warn()
	case models.LevelError:
		e = p.log.Error()
	}

	e.Str("event_id", ev.ID).
		Str("origin", string(ev.Origin)).
		Int64("device_id", int64(ev.DeviceID)).
		Str("index", ev.Index).
		Str("oid", ev.OID).
		Str("value", ev.Value).
		Time("timestamp", ev.Timestamp).
		Msg(ev.Message)
	return nil
}

func (p *LogPublisher) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	for _, envelope := range envelopes {
		if err := p.Publish(ctx, envelope); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck always succeeds
func (p *LogPublisher) HealthCheck(ctx context.Context) error { return nil }
