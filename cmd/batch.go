package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/input"
	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/resolver"
)

var (
	batchInput        string
	batchLimit        int
	batchConcurrency  int
	batchForceRefresh bool
	batchDryRun       bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve a batch of entities from a CSV or XLSX file",
	Example: `  enrich-cli batch --input films.csv
  enrich-cli batch --input backlog.xlsx --limit 100 --concurrency 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		items, err := input.ReadEntities(batchInput)
		if err != nil {
			return eris.Wrapf(err, "batch: read %s", batchInput)
		}
		if batchLimit > 0 && len(items) > batchLimit {
			items = items[:batchLimit]
		}
		if len(items) == 0 {
			zap.L().Warn("no entities found in input file", zap.String("input", batchInput))
			return nil
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrentEntities
		}

		persist := func(pctx context.Context, result *model.ResolutionResult) error {
			return resolver.Persist(pctx, env.Repo, result)
		}
		if batchDryRun {
			persist = nil
		}

		start := time.Now()
		summary, err := env.Engine.ResolveBatch(ctx, items, concurrency, resolver.Options{
			MinAcceptConfidence: cfg.Resolver.MinAcceptConfidence,
			MaxAdaptersTried:    cfg.Resolver.MaxAdaptersTried,
			ForceRefresh:        batchForceRefresh,
		}, persist)
		if err != nil {
			return eris.Wrap(err, "batch")
		}

		zap.L().Info("batch finished",
			zap.Int("entities", len(items)),
			zap.Int64("succeeded", summary.Succeeded),
			zap.Int64("failed", summary.Failed),
			zap.Int64("needs_review", summary.NeedsReview),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV or XLSX file of entities (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "process at most N entities (0 = all)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "concurrent entities (default from config)")
	batchCmd.Flags().BoolVar(&batchForceRefresh, "force-refresh", false, "bypass the response cache")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "resolve without persisting results")
	_ = batchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(batchCmd)
}
