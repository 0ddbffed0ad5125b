package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/resolver"
	"github.com/filmgrid/enrich-cli/internal/store"
)

var (
	conflictsEntity     string
	conflictsSeverity   string
	conflictsUnresolved bool
	conflictsLimit      int
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Inspect and resolve detected field conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded conflicts",
	Example: `  enrich-cli conflicts list --unresolved
  enrich-cli conflicts list --entity "film:tt0113277" --severity high`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		filter := store.ConflictFilter{
			EntityKey:  conflictsEntity,
			Severity:   model.ConflictSeverity(conflictsSeverity),
			Unresolved: conflictsUnresolved,
			Limit:      conflictsLimit,
		}
		conflicts, err := env.Repo.ListConflicts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "conflicts: list")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conflicts)
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Mark a conflict as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrapf(err, "conflicts: invalid id %q", args[0])
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entityKey, err := env.Repo.ResolveConflict(ctx, id.String())
		if err != nil {
			return eris.Wrap(err, "conflicts: resolve")
		}

		record, err := resolver.RefreshReviewFlag(ctx, env.Repo, entityKey, cfg.Resolver.ConfidenceFloor)
		if err != nil {
			return eris.Wrap(err, "conflicts: refresh review flag")
		}

		log := zap.L().With(zap.String("id", id.String()), zap.String("entity", entityKey))
		if record != nil && !record.NeedsManualReview {
			log.Info("conflict resolved, review flag cleared")
		} else {
			log.Info("conflict resolved")
		}
		return nil
	},
}

func init() {
	conflictsListCmd.Flags().StringVar(&conflictsEntity, "entity", "", "filter by entity key, e.g. \"film:tt0113277\"")
	conflictsListCmd.Flags().StringVar(&conflictsSeverity, "severity", "", "filter by severity (low|medium|high)")
	conflictsListCmd.Flags().BoolVar(&conflictsUnresolved, "unresolved", false, "only unresolved conflicts")
	conflictsListCmd.Flags().IntVar(&conflictsLimit, "limit", 50, "max conflicts to return")
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}
