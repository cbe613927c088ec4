package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/tenet/internal/api"
	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/pkg/handlers"
	"github.com/JaimeStill/tenet/pkg/lifecycle"
	"github.com/JaimeStill/tenet/pkg/middleware"
	"github.com/JaimeStill/tenet/pkg/module"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the lifecycle API over HTTP",
		Long: `Serve the JSON API under /api with /healthz, /readyz, and /metrics beside it.
When server.sweep_interval is set, a health sweep with correction analysis
runs on that interval until shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv, err := newServer(cmd.Context(), c.session)
			if err != nil {
				return err
			}
			return srv.run(nil)
		},
	}
}

// server runs the HTTP listener and the scheduled sweep under one
// lifecycle coordinator.
type server struct {
	http     *http.Server
	lc       *lifecycle.Coordinator
	domain   *engine.Domain
	logger   *slog.Logger
	cfg      *config.ServerConfig
	archive  bool
	interval time.Duration
}

func newServer(ctx context.Context, s *session) (*server, error) {
	cfg := &s.Config.Server
	srv := &server{
		lc:       lifecycle.New(ctx),
		domain:   s.Domain,
		logger:   s.Logger.With("system", "http"),
		cfg:      cfg,
		archive:  s.Config.Health.Archive && s.Domain.Reports != nil,
		interval: cfg.SweepIntervalDuration(),
	}

	router, err := srv.router(s)
	if err != nil {
		return nil, err
	}

	srv.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
	}
	return srv, nil
}

func (srv *server) router(s *session) (*module.Router, error) {
	router := module.NewRouter()

	router.Handle("GET /healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	router.Handle("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if !srv.lc.Ready() {
			handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}))
	if s.Gatherer != nil {
		router.Handle("GET /metrics", middleware.Logger(srv.logger)(
			promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(srv.logger.Handler(), slog.LevelError)}),
		))
	}

	apiModule, err := api.NewModule(s.Config, s.Domain, s.Logger)
	if err != nil {
		return nil, fmt.Errorf("api module: %w", err)
	}
	if err := router.Mount(apiModule); err != nil {
		return nil, err
	}
	return router, nil
}

// run serves until the coordinator context ends or the listener fails.
// listening, when set, receives the bound address.
func (srv *server) run(listening func(net.Addr)) error {
	ln, err := net.Listen("tcp", srv.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.http.Addr, err)
	}

	srv.lc.OnShutdown(func(ctx context.Context) error {
		srv.logger.Info("shutting down server")
		return srv.http.Shutdown(ctx)
	})
	if srv.interval > 0 {
		srv.lc.Go(srv.sweepLoop)
	}

	failed := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", "addr", ln.Addr().String())
		if err := srv.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	if err := srv.lc.Start(); err != nil {
		return errors.Join(err, srv.lc.Shutdown(srv.cfg.ShutdownTimeoutDuration()))
	}
	if listening != nil {
		listening(ln.Addr())
	}

	var serveErr error
	select {
	case <-srv.lc.Context().Done():
	case serveErr = <-failed:
	}

	return errors.Join(serveErr, srv.lc.Shutdown(srv.cfg.ShutdownTimeoutDuration()))
}

func (srv *server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(srv.interval)
	defer ticker.Stop()

	srv.logger.Info("scheduled sweep enabled", "interval", srv.interval, "archive", srv.archive)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := srv.domain.Sweep(ctx, engine.SweepOptions{Analyze: true, Archive: srv.archive})
			if err != nil {
				srv.logger.Error("scheduled sweep failed", "error", err)
				continue
			}
			srv.logger.Info("scheduled sweep complete",
				"declining", len(result.Report.Declining),
				"archive_key", result.ArchiveKey,
			)
		}
	}
}
