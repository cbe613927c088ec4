package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/tenet/internal/corrections"
	"github.com/JaimeStill/tenet/internal/health"
)

// AnalyzeLimit bounds concurrent correction analyses during a sweep.
const AnalyzeLimit = 4

// ErrArchiveDisabled is returned when an archive is requested without
// configured storage.
var ErrArchiveDisabled = errors.New("report archive not configured")

// SweepOptions controls one health sweep. A MinUsage or WindowDays below
// one uses the configured value.
type SweepOptions struct {
	MinUsage   int64
	WindowDays int
	Analyze    bool
	Archive    bool
}

// SweepResult is the sweep report plus the optional follow-ups.
type SweepResult struct {
	Report     health.Report          `json:"report"`
	Analyses   []corrections.Analysis `json:"analyses,omitempty"`
	ArchiveKey string                 `json:"archive_key,omitempty"`
}

// Sweep runs the health monitor, analyzes corrections for each declining
// pattern when asked, and archives the report when asked.
func (d *Domain) Sweep(ctx context.Context, opts SweepOptions) (*SweepResult, error) {
	if opts.Archive && d.Reports == nil {
		return nil, ErrArchiveDisabled
	}
	if opts.MinUsage < 1 {
		opts.MinUsage = d.rt.Health.MinUsage
	}

	result := &SweepResult{Report: d.Health.Sweep(ctx, opts.MinUsage)}

	if opts.Analyze {
		result.Analyses = d.analyze(ctx, result.Report.Declining, opts.WindowDays)
	}

	if opts.Archive {
		key, err := d.Reports.Save(ctx, result.Report)
		if err != nil {
			return result, fmt.Errorf("archive sweep: %w", err)
		}
		result.ArchiveKey = key
	}

	return result, nil
}

// analyze runs one analysis per status. Results keep the report order.
func (d *Domain) analyze(ctx context.Context, declining []health.Status, windowDays int) []corrections.Analysis {
	out := make([]corrections.Analysis, len(declining))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(AnalyzeLimit)

	for i, s := range declining {
		g.Go(func() error {
			out[i] = d.Analyzer.AnalyzeCorrections(gctx, s.PatternID, windowDays)
			return nil
		})
	}
	// AnalyzeCorrections degrades to a default analysis instead of
	// failing, so Wait only joins the bounded workers.
	_ = g.Wait()

	return out
}

// Flush waits for buffered broadcasts to reach NATS.
func (d *Domain) Flush(ctx context.Context) error {
	if d.Publisher == nil {
		return nil
	}
	return d.Publisher.Flush(ctx)
}
