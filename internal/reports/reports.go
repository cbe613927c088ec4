// Package reports archives health sweep reports as JSON blobs.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/JaimeStill/tenet/internal/health"
	"github.com/JaimeStill/tenet/pkg/formatting"
	"github.com/JaimeStill/tenet/pkg/storage"
)

const (
	root        = "health"
	contentType = "application/json"
)

// ErrNoReports is returned by Latest when a day has no archived report.
var ErrNoReports = errors.New("no archived health reports")

// Archive writes and reads reports through blob storage.
type Archive struct {
	store  storage.System
	logger *slog.Logger
}

func New(store storage.System, logger *slog.Logger) *Archive {
	return &Archive{
		store:  store,
		logger: logger.With("system", "reports"),
	}
}

// DayPrefix is the key prefix of every report generated on t's UTC day.
func DayPrefix(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/", root, t.Year(), t.Month(), t.Day())
}

// Key is the blob key of a report generated at t.
func Key(t time.Time) string {
	return fmt.Sprintf("%s%d.json", DayPrefix(t), t.UnixNano())
}

// Save uploads r and returns its key.
func (a *Archive) Save(ctx context.Context, r health.Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := Key(r.GeneratedAt)
	if err := a.store.Upload(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}

	a.logger.Info("health report archived",
		"key", key,
		"declining", len(r.Declining),
		"size", formatting.FormatBytes(int64(len(data))),
	)
	return key, nil
}

// Get reads the report stored at key.
func (a *Archive) Get(ctx context.Context, key string) (*health.Report, error) {
	data, err := a.store.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", key, err)
	}

	var r health.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", key, err)
	}
	return &r, nil
}

// Latest returns the most recent report generated on day.
func (a *Archive) Latest(ctx context.Context, day time.Time) (*health.Report, string, error) {
	keys, err := a.store.List(ctx, DayPrefix(day))
	if err != nil {
		return nil, "", fmt.Errorf("list reports: %w", err)
	}
	if len(keys) == 0 {
		return nil, "", ErrNoReports
	}

	key := slices.Max(keys)
	r, err := a.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	return r, key, nil
}
