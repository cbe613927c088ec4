package corrections

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/JaimeStill/tenet/internal/metrics"
	"github.com/JaimeStill/tenet/internal/patterns"
)

// DefaultWindowDays applies when a caller passes a window below one day.
const DefaultWindowDays = 30

// Correction rate thresholds. Both bounds are exclusive.
const (
	HighRate     = 0.15
	ModerateRate = 0.05
)

type Status string

const (
	NoCorrections          Status = "no_corrections"
	HighCorrectionRate     Status = "high_correction_rate"
	ModerateCorrectionRate Status = "moderate_correction_rate"
	Acceptable             Status = "acceptable"
)

type Recommendation string

const (
	None                     Recommendation = "none"
	MinorRevision            Recommendation = "minor_revision"
	DeprecateOrMajorRevision Recommendation = "deprecate_or_major_revision"
)

// CorrectionType names the extraction field reviewers corrected most.
type CorrectionType string

const (
	Category     CorrectionType = "category"
	Frequency    CorrectionType = "frequency"
	Subjectivity CorrectionType = "subjectivity"
	Other        CorrectionType = "other"
	Error        CorrectionType = "error"
)

// fields maps each tracked extraction key to its correction type. Order
// breaks ties.
var fields = []struct {
	key  string
	kind CorrectionType
}{
	{"category", Category},
	{"frequency", Frequency},
	{"is_subjective", Subjectivity},
}

// Analysis summarizes reviewer corrections of one pattern. CorrectionRate
// divides corrections in the window by lifetime usage.
type Analysis struct {
	PatternID             string         `json:"pattern_id"`
	Status                Status         `json:"status"`
	Recommendation        Recommendation `json:"recommendation"`
	CorrectionRate        float64        `json:"correction_rate"`
	CorrectionCount       int            `json:"correction_count"`
	WindowReviewCount     int            `json:"window_review_count"`
	UsageCount            int64          `json:"usage_count"`
	PrimaryCorrectionType CorrectionType `json:"primary_correction_type"`
	WindowDays            int            `json:"window_days"`
	AnalyzedAt            time.Time      `json:"analyzed_at"`
}

// Analyzer computes correction analyses. It never fails: lookup errors
// produce an Analysis with PrimaryCorrectionType Error.
type Analyzer struct {
	patterns   patterns.Reader
	feed       Feed
	metrics    *metrics.Metrics
	logger     *slog.Logger
	windowDays int
	now        func() time.Time
}

// NewAnalyzer creates an Analyzer. windowDays below one falls back to
// DefaultWindowDays.
func NewAnalyzer(store patterns.Reader, feed Feed, m *metrics.Metrics, logger *slog.Logger, windowDays int) *Analyzer {
	if windowDays < 1 {
		windowDays = DefaultWindowDays
	}
	return &Analyzer{
		patterns:   store,
		feed:       feed,
		metrics:    m,
		logger:     logger.With("system", "corrections"),
		windowDays: windowDays,
		now:        time.Now,
	}
}

// AnalyzeCorrections analyzes the active version of patternID over the
// last windowDays days.
func (a *Analyzer) AnalyzeCorrections(ctx context.Context, patternID string, windowDays int) Analysis {
	if windowDays < 1 {
		windowDays = a.windowDays
	}
	now := a.now().UTC()

	result := Analysis{
		PatternID:             patternID,
		Status:                NoCorrections,
		Recommendation:        None,
		PrimaryCorrectionType: Other,
		WindowDays:            windowDays,
		AnalyzedAt:            now,
	}

	analysis, err := a.analyze(ctx, result, Last(now, windowDays))
	if err != nil {
		a.logger.Error("correction analysis failed", "pattern_id", patternID, "error", err)
		result.PrimaryCorrectionType = Error
		a.metrics.Analysis(string(result.Recommendation))
		return result
	}

	a.metrics.Analysis(string(analysis.Recommendation))
	a.logger.Debug("correction analysis complete",
		"pattern_id", patternID,
		"status", analysis.Status,
		"correction_rate", analysis.CorrectionRate,
	)
	return analysis
}

func (a *Analyzer) analyze(ctx context.Context, result Analysis, w Window) (Analysis, error) {
	active, err := a.patterns.FindActive(ctx, result.PatternID)
	switch {
	case errors.Is(err, patterns.ErrNotFound):
		return result, nil
	case err != nil:
		return result, err
	}

	result.UsageCount = active.Performance.UsageCount
	if result.UsageCount == 0 {
		return result, nil
	}

	records, err := a.feed.Corrections(ctx, result.PatternID, w)
	if err != nil {
		return result, err
	}

	reviews, err := a.feed.ReviewCount(ctx, result.PatternID, w)
	if err != nil {
		return result, err
	}
	result.WindowReviewCount = reviews

	if len(records) == 0 {
		return result, nil
	}

	result.CorrectionCount = len(records)
	result.CorrectionRate = float64(len(records)) / float64(result.UsageCount)
	result.PrimaryCorrectionType = primaryType(records)
	result.Status, result.Recommendation = classify(result.CorrectionRate)
	return result, nil
}

func classify(rate float64) (Status, Recommendation) {
	switch {
	case rate > HighRate:
		return HighCorrectionRate, DeprecateOrMajorRevision
	case rate > ModerateRate:
		return ModerateCorrectionRate, MinorRevision
	default:
		return Acceptable, None
	}
}

func primaryType(records []Record) CorrectionType {
	counts := make([]int, len(fields))
	for _, r := range records {
		if r.EditedData == nil {
			continue
		}
		for i, f := range fields {
			if !reflect.DeepEqual(r.OriginalData[f.key], r.EditedData[f.key]) {
				counts[i]++
			}
		}
	}

	best, bestCount := Other, 0
	for i, f := range fields {
		if counts[i] > bestCount {
			best, bestCount = f.kind, counts[i]
		}
	}
	return best
}
