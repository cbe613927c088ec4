// Package broadcast publishes committed lifecycle events to NATS so
// matching nodes can refresh their active pattern sets.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/JaimeStill/tenet/internal/events"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "tenet.patterns"

// Publisher is an events.Observer that publishes each event as JSON.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// Connect dials the configured NATS server. It returns nil, nil when
// broadcasting is disabled.
func Connect(cfg *Config, logger *slog.Logger) (*nats.Conn, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("tenet"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWaitDuration()),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// New creates a Publisher on conn.
func New(conn *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("system", "broadcast"),
	}
}

// Subject returns the subject an event of type t is published on.
func (p *Publisher) Subject(t events.Type) string {
	return p.prefix + "." + strings.ToLower(string(t))
}

// Publish sends e. The publish is buffered by the client; Flush waits
// for the server.
func (p *Publisher) Publish(e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	if err := p.conn.Publish(p.Subject(e.Type), data); err != nil {
		return fmt.Errorf("publish event %s: %w", e.ID, err)
	}
	return nil
}

// Observe publishes e and logs failures.
func (p *Publisher) Observe(_ context.Context, e events.Event) {
	if err := p.Publish(e); err != nil {
		p.logger.Error("event broadcast failed",
			"pattern_id", e.PatternID,
			"event_type", e.Type,
			"error", err,
		)
		return
	}
	p.logger.Debug("event broadcast", "subject", p.Subject(e.Type), "event_id", e.ID)
}

// Flush waits until published events reach the server or ctx ends.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.conn.FlushWithContext(ctx)
}
