package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogPublisher writes events to the log. It is the development default and the
// fallback when a broker is unreachable at startup.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.log.Info().
		Str("event", e.Name).
		Str("event_id", e.ID.String()).
		Uint("invoice_id", e.InvoiceID).
		Str("tenant_id", e.TenantID).
		Time("timestamp", e.Timestamp).
		Interface("payload", e.Payload).
		Msg("invoice event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
