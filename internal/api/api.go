// Package api exposes the lifecycle engine as a JSON HTTP module.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/pkg/middleware"
	"github.com/JaimeStill/tenet/pkg/module"
	"github.com/JaimeStill/tenet/pkg/openapi"
	"github.com/JaimeStill/tenet/pkg/routes"
)

// BasePath is the mount prefix of the API module.
const BasePath = "/api"

// NewModule creates the API module over d.
func NewModule(cfg *config.Config, d *engine.Domain, logger *slog.Logger) (*module.Module, error) {
	logger = logger.With("module", "api")

	mux := http.NewServeMux()
	groups := []routes.Group{
		newPatternHandler(d, logger, cfg).routes(),
		newDraftHandler(d, logger, cfg.Server.MaxBodyBytes()).routes(),
		newHealthHandler(d, logger).routes(),
	}
	if d.Reports != nil {
		groups = append(groups, newReportHandler(d.Reports, logger).routes())
	}
	for _, p := range routes.Register(mux, groups...) {
		logger.Debug("route registered", "pattern", p)
	}

	spec := openapi.Build(openapi.Info{
		Title:       "tenet",
		Version:     cfg.Version,
		Description: "Lifecycle and health engine for obligation extraction patterns.",
	}, BasePath, groups...)
	doc, err := openapi.Handler(spec)
	if err != nil {
		return nil, fmt.Errorf("openapi: %w", err)
	}
	mux.HandleFunc("GET /openapi.json", doc)

	m, err := module.New(BasePath, mux)
	if err != nil {
		return nil, err
	}
	m.Use(
		middleware.Trace(),
		middleware.CORS(&cfg.Server.CORS),
		middleware.Logger(logger),
	)
	return m, nil
}
