// Command tenet runs the pattern lifecycle engine: health sweeps,
// correction analysis, drafting, promotion, and rollback.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/tenet/internal/config"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/internal/infrastructure"
)

const shutdownTimeout = 10 * time.Second

// session is one opened engine and the means to release it.
type session struct {
	Config   *config.Config
	Logger   *slog.Logger
	Domain   *engine.Domain
	Gatherer prometheus.Gatherer
	Close    func(ctx context.Context) error
}

// opener builds a session from a config path.
type opener func(ctx context.Context, configPath string) (*session, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, open, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// run executes one command and always releases the session it opened.
func run(ctx context.Context, o opener, out io.Writer, args []string) error {
	c := &cli{open: o, out: out}

	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.finish(ctx))
}

func open(ctx context.Context, configPath string) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}

	infra, err := infrastructure.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := infra.Start(ctx); err != nil {
		infra.Close(ctx)
		return nil, err
	}

	domain, err := engine.NewDomain(engine.NewRuntime(cfg, infra))
	if err != nil {
		infra.Close(ctx)
		return nil, err
	}

	return &session{
		Config:   cfg,
		Logger:   infra.Logger,
		Domain:   domain,
		Gatherer: infra.Registry,
		Close: func(ctx context.Context) error {
			return errors.Join(domain.Flush(ctx), infra.Close(ctx))
		},
	}, nil
}

// cli carries the state shared by every command.
type cli struct {
	open        opener
	out         io.Writer
	configPath  string
	metricsFile string
	session     *session
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tenet",
		Short: "Lifecycle and health engine for obligation extraction patterns",
		Long: `tenet monitors the health of active extraction patterns, analyzes reviewer
corrections, and manages draft, promotion, rollback, and deprecation of
pattern versions. Results are written to stdout as JSON.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.start,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default config.toml when present)")
	root.PersistentFlags().StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this path on exit")

	root.AddCommand(
		c.sweepCmd(),
		c.analyzeCmd(),
		c.draftCmd(),
		c.seedCmd(),
		c.activateCmd(),
		c.rollbackCmd(),
		c.deprecateCmd(),
		c.historyCmd(),
		c.activeCmd(),
		c.serveCmd(),
	)

	return root
}

func (c *cli) start(cmd *cobra.Command, _ []string) error {
	s, err := c.open(cmd.Context(), c.configPath)
	if err != nil {
		return err
	}
	c.session = s
	return nil
}

// finish exports metrics and releases the session. It runs on a fresh
// context so an interrupted command still drains its broadcasts.
func (c *cli) finish(parent context.Context) error {
	if c.session == nil {
		return nil
	}

	var errs []error
	if c.metricsFile != "" && c.session.Gatherer != nil {
		if err := prometheus.WriteToTextfile(c.metricsFile, c.session.Gatherer); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), shutdownTimeout)
	defer cancel()

	if err := c.session.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	c.session = nil

	return errors.Join(errs...)
}

func (c *cli) domain() *engine.Domain {
	return c.session.Domain
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
