// Package engine assembles the pattern lifecycle systems over a Runtime.
package engine

import (
	"fmt"

	"github.com/JaimeStill/tenet/internal/activeset"
	"github.com/JaimeStill/tenet/internal/broadcast"
	"github.com/JaimeStill/tenet/internal/corrections"
	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/health"
	"github.com/JaimeStill/tenet/internal/metrics"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/internal/promotion"
	"github.com/JaimeStill/tenet/internal/reports"
)

// Domain holds every system of the lifecycle engine. Publisher and
// Reports are nil when NATS or storage is not configured.
type Domain struct {
	Patterns  patterns.Store
	Events    events.Log
	Analyzer  *corrections.Analyzer
	Health    *health.Monitor
	Drafts    *drafts.Manager
	Promotion *promotion.Manager
	Active    *activeset.Set
	Publisher *broadcast.Publisher
	Reports   *reports.Archive
	Metrics   *metrics.Metrics

	rt *Runtime
}

// NewDomain creates the Postgres-backed domain.
func NewDomain(rt *Runtime) (*Domain, error) {
	db := rt.Database.Connection()
	return Assemble(
		rt,
		patterns.New(db, rt.Logger, rt.Pagination),
		corrections.New(db, rt.Logger),
	)
}

// Assemble wires the domain over store and feed. Write managers notify
// the active set, the broadcast publisher, and the metrics collectors
// after every commit.
func Assemble(rt *Runtime, store patterns.Store, feed corrections.Feed) (*Domain, error) {
	m, err := metrics.New(rt.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics init failed: %w", err)
	}

	d := &Domain{
		Patterns: store,
		Events:   store.Events(),
		Analyzer: corrections.NewAnalyzer(store, feed, m, rt.Logger, rt.Health.WindowDays),
		Health:   health.New(store, m, rt.Logger),
		Active:   activeset.New(store, rt.Cache, rt.CacheTTL, rt.Logger),
		Metrics:  m,
		rt:       rt,
	}

	observers := []events.Observer{d.Active, m}
	if rt.NATS != nil {
		d.Publisher = broadcast.New(rt.NATS, rt.SubjectPrefix, rt.Logger)
		observers = append(observers, d.Publisher)
	}
	if rt.Storage != nil {
		d.Reports = reports.New(rt.Storage, rt.Logger)
	}

	d.Drafts = drafts.New(store, rt.Logger, observers...)
	d.Promotion = promotion.New(store, rt.Logger, observers...)

	return d, nil
}
