// Package health scans active patterns for declining performance.
package health

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JaimeStill/tenet/internal/metrics"
	"github.com/JaimeStill/tenet/internal/patterns"
)

// State is the derived health classification of a pattern.
type State string

const (
	Healthy  State = "HEALTHY"
	Warning  State = "WARNING"
	Critical State = "CRITICAL"
)

// Thresholds. Success rates are fractions; the override rate is a percentage.
const (
	DefaultMinUsage     = 10
	WarningSuccessRate  = 0.90
	CriticalSuccessRate = 0.85
	MaxOverrideRate     = 10.0
)

var tracer = otel.Tracer("tenet.health")

// Status is the health snapshot of one active pattern.
type Status struct {
	PatternID          string  `json:"pattern_id"`
	PatternVersion     string  `json:"pattern_version"`
	UsageCount         int64   `json:"usage_count"`
	SuccessRate        float64 `json:"success_rate"`
	FalsePositiveCount int64   `json:"false_positive_count"`
	UserOverrideCount  int64   `json:"user_override_count"`
	OverrideRate       float64 `json:"override_rate"`
	HealthStatus       State   `json:"health_status"`
}

// Report is the result of one sweep.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	MinUsage    int64         `json:"min_usage"`
	Scanned     int           `json:"scanned"`
	Declining   []Status      `json:"declining"`
	Counts      map[State]int `json:"counts"`
}

// Monitor derives health statuses from the active pattern rows.
type Monitor struct {
	patterns patterns.Reader
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(store patterns.Reader, m *metrics.Metrics, logger *slog.Logger) *Monitor {
	return &Monitor{
		patterns: store,
		metrics:  m,
		logger:   logger.With("system", "health"),
		now:      time.Now,
	}
}

// FindDecliningPatterns returns active patterns with at least minUsageCount
// uses whose success rate is below the warning threshold or whose override
// rate exceeds MaxOverrideRate. Store errors yield an empty list.
func (m *Monitor) FindDecliningPatterns(ctx context.Context, minUsageCount int64) []Status {
	declining, _, err := m.scan(ctx, minUsageCount)
	if err != nil {
		m.logger.Error("health scan failed", "error", err)
		return []Status{}
	}
	return declining
}

// Sweep runs FindDecliningPatterns and summarizes the result for
// archiving and metrics.
func (m *Monitor) Sweep(ctx context.Context, minUsageCount int64) Report {
	ctx, span := tracer.Start(ctx, "health.Sweep")
	defer span.End()

	start := m.now()
	declining, scanned, err := m.scan(ctx, minUsageCount)
	if err != nil {
		m.logger.Error("health sweep failed", "error", err)
		span.RecordError(err)
		declining = []Status{}
	}

	report := Report{
		GeneratedAt: start.UTC(),
		MinUsage:    minUsageCount,
		Scanned:     scanned,
		Declining:   declining,
		Counts:      map[State]int{Healthy: 0, Warning: 0, Critical: 0},
	}

	rates := make(map[string]float64, len(declining))
	for _, s := range declining {
		report.Counts[s.HealthStatus]++
		rates[s.PatternID] = s.SuccessRate
	}

	counts := make(map[string]int, len(report.Counts))
	for state, n := range report.Counts {
		counts[string(state)] = n
	}
	m.metrics.Sweep(m.now().Sub(start), counts, rates)

	span.SetAttributes(
		attribute.Int("health.scanned", scanned),
		attribute.Int("health.declining", len(declining)),
	)
	m.logger.Info("health sweep complete",
		"scanned", scanned,
		"declining", len(declining),
		"critical", report.Counts[Critical],
	)
	return report
}

func (m *Monitor) scan(ctx context.Context, minUsageCount int64) ([]Status, int, error) {
	active, err := m.patterns.ListActive(ctx)
	if err != nil {
		return nil, 0, err
	}

	declining := make([]Status, 0)
	for _, p := range active {
		perf := p.Performance
		if perf.UsageCount < minUsageCount {
			continue
		}

		overrideRate := perf.OverrideRate()
		if perf.SuccessRate >= WarningSuccessRate && overrideRate <= MaxOverrideRate {
			continue
		}

		declining = append(declining, Status{
			PatternID:          p.PatternID,
			PatternVersion:     p.Version,
			UsageCount:         perf.UsageCount,
			SuccessRate:        perf.SuccessRate,
			FalsePositiveCount: perf.FalsePositiveCount,
			UserOverrideCount:  perf.UserOverrideCount,
			OverrideRate:       overrideRate,
			HealthStatus:       classify(perf.SuccessRate),
		})
	}

	slices.SortFunc(declining, func(a, b Status) int {
		return cmp.Or(
			cmp.Compare(a.SuccessRate, b.SuccessRate),
			cmp.Compare(b.UserOverrideCount, a.UserOverrideCount),
			strings.Compare(a.PatternID, b.PatternID),
		)
	})
	return declining, len(active), nil
}

// classify looks only at the success rate, so a pattern listed for its
// override rate alone reports HEALTHY.
func classify(successRate float64) State {
	switch {
	case successRate < CriticalSuccessRate:
		return Critical
	case successRate < WarningSuccessRate:
		return Warning
	default:
		return Healthy
	}
}
