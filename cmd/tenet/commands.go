package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/tenet/internal/drafts"
	"github.com/JaimeStill/tenet/internal/engine"
	"github.com/JaimeStill/tenet/internal/events"
	"github.com/JaimeStill/tenet/internal/patterns"
	"github.com/JaimeStill/tenet/internal/promotion"
	"github.com/JaimeStill/tenet/pkg/pagination"
)

func (c *cli) sweepCmd() *cobra.Command {
	var opts engine.SweepOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report declining active patterns",
		Long: `Scan every active pattern and report those whose success rate or override
rate is outside the healthy band, worst first. With --analyze each declining
pattern also gets a correction analysis. With --archive the report is saved
to blob storage.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := c.domain().Sweep(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return c.print(result)
		},
	}

	cmd.Flags().Int64Var(&opts.MinUsage, "min-usage", 0, "minimum usage count (default from config)")
	cmd.Flags().IntVar(&opts.WindowDays, "window-days", 0, "correction window in days (default from config)")
	cmd.Flags().BoolVar(&opts.Analyze, "analyze", false, "analyze corrections of each declining pattern")
	cmd.Flags().BoolVar(&opts.Archive, "archive", false, "archive the report to blob storage")

	return cmd
}

func (c *cli) analyzeCmd() *cobra.Command {
	var windowDays int

	cmd := &cobra.Command{
		Use:   "analyze <pattern_id>",
		Short: "Analyze reviewer corrections of one pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(c.domain().Analyzer.AnalyzeCorrections(cmd.Context(), args[0], windowDays))
		},
	}

	cmd.Flags().IntVar(&windowDays, "window-days", 0, "correction window in days (default from config)")

	return cmd
}

func (c *cli) draftCmd() *cobra.Command {
	var (
		changesFile string
		reason      string
		by          string
	)

	cmd := &cobra.Command{
		Use:   "draft <pattern_id>",
		Short: "Cut an inactive draft version from the active version",
		Long: `Create an inactive draft of a pattern by applying the overrides in a JSON
changes file to its active version. The draft version is the active version
with its minor component bumped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var changes drafts.Changes
			if err := readJSON(changesFile, &changes); err != nil {
				return err
			}
			if reason != "" {
				changes.Reason = reason
			}
			if by != "" {
				changes.PerformedBy = &by
			}

			draft, err := c.domain().Drafts.Create(cmd.Context(), args[0], changes)
			if err != nil {
				return err
			}
			return c.print(draft)
		},
	}

	cmd.Flags().StringVar(&changesFile, "changes", "", "JSON file of field overrides")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the UPDATED event")
	cmd.Flags().StringVar(&by, "by", "", "user recorded on the UPDATED event")
	_ = cmd.MarkFlagRequired("changes")

	return cmd
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.json>",
		Short: "Create the first active version of a new pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed drafts.SeedCommand
			if err := readJSON(args[0], &seed); err != nil {
				return err
			}

			p, err := c.domain().Drafts.Seed(cmd.Context(), seed)
			if err != nil {
				return err
			}
			return c.print(p)
		},
	}
}

func (c *cli) activateCmd() *cobra.Command {
	var results promotion.BacktestResults

	cmd := &cobra.Command{
		Use:   "activate <draft_id>",
		Short: "Promote a draft when its back-test improvement clears the gate",
		Long: fmt.Sprintf(`Activate a draft version. A draft whose improvement rate is below %.2f is
deleted and the command fails. Otherwise every active version of the pattern
is deprecated in favor of the draft.`, promotion.MinImprovement),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid draft id %q: %w", args[0], err)
			}

			outcome, err := c.domain().Promotion.Activate(cmd.Context(), id, results)
			if err != nil {
				return err
			}
			return c.print(outcome)
		},
	}

	cmd.Flags().Float64Var(&results.ImprovementRate, "improvement-rate", 0, "back-test improvement rate")
	cmd.Flags().Float64Var(&results.AccuracyChange, "accuracy-change", 0, "back-test accuracy change")
	_ = cmd.MarkFlagRequired("improvement-rate")

	return cmd
}

func (c *cli) rollbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback <pattern_id> <version>",
		Short: "Reactivate a previous version of a pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := c.domain().Promotion.Rollback(cmd.Context(), args[0], args[1], reason)
			if err != nil {
				return err
			}
			return c.print(outcome)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the ROLLBACK event")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func (c *cli) deprecateCmd() *cobra.Command {
	var (
		reason string
		by     string
	)

	cmd := &cobra.Command{
		Use:   "deprecate <pattern_id>",
		Short: "Retire the active version of a pattern without replacement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var performedBy *string
			if by != "" {
				performedBy = &by
			}

			outcome, err := c.domain().Promotion.Deprecate(cmd.Context(), args[0], reason, performedBy)
			if err != nil {
				return err
			}
			return c.print(outcome)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the DEPRECATED event")
	cmd.Flags().StringVar(&by, "by", "", "user recorded on the DEPRECATED event")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var (
		page  pagination.PageRequest
		types []string
	)

	cmd := &cobra.Command{
		Use:   "history <pattern_id>",
		Short: "List lifecycle events of a pattern, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := events.Filters{PatternID: args[0]}
			for _, t := range types {
				var typ events.Type
				if err := typ.UnmarshalJSON([]byte(`"` + t + `"`)); err != nil {
					return err
				}
				filters.Types = append(filters.Types, typ)
			}

			result, err := c.domain().Events.List(cmd.Context(), filters, page)
			if err != nil {
				return err
			}
			return c.print(result)
		},
	}

	cmd.Flags().IntVar(&page.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&page.PageSize, "page-size", 0, "page size (default from config)")
	cmd.Flags().StringSliceVar(&types, "type", nil, "only these event types")

	return cmd
}

func (c *cli) activeCmd() *cobra.Command {
	var scope patterns.Scope

	cmd := &cobra.Command{
		Use:   "active",
		Short: "List the active pattern set, optionally narrowed to a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := c.domain().Active.ForScope(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return c.print(rows)
		},
	}

	cmd.Flags().StringVar(&scope.Module, "module", "", "module scope")
	cmd.Flags().StringVar(&scope.Regulator, "regulator", "", "regulator scope")
	cmd.Flags().StringVar(&scope.DocumentType, "document-type", "", "document type scope")

	return cmd
}

func readJSON(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
