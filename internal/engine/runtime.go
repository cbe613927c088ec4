package engine

import (
	"time"

	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/internal/infrastructure"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

// Runtime extends Infrastructure with the settings the engine reads.
type Runtime struct {
	*infrastructure.Infrastructure
	Health        config.HealthConfig
	Pagination    pagination.Config
	CacheTTL      time.Duration
	SubjectPrefix string
}

// NewRuntime creates an engine runtime with a module-scoped logger.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) *Runtime {
	scoped := *infra
	scoped.Logger = infra.Logger.With("module", "engine")

	return &Runtime{
		Infrastructure: &scoped,
		Health:         cfg.Health,
		Pagination:     cfg.Pagination,
		CacheTTL:       cfg.Cache.TTLDuration(),
		SubjectPrefix:  cfg.Broadcast.SubjectPrefix,
	}
}
