package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/input"
	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/resolver"
)

var (
	resolveType           string
	resolveID             string
	resolveTitle          string
	resolveYear           int
	resolveFields         string
	resolveForceRefresh   bool
	resolveAllowDowngrade bool
	resolveNoPersist      bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one entity's fields across all configured sources",
	Example: `  enrich-cli resolve --type film --title "Heat" --year 1995 --fields director,poster_url
  enrich-cli resolve --type person --id nm0000199 --force-refresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		key := model.EntityKey{
			Type:  model.EntityType(resolveType),
			ID:    resolveID,
			Title: resolveTitle,
			Year:  resolveYear,
		}
		if key.IsZero() {
			return eris.New("either --id or --title is required")
		}

		fields := input.ParseFields(key.Type, resolveFields)
		if len(fields) == 0 {
			return eris.Errorf("no resolvable fields for entity type %q", resolveType)
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Engine.Resolve(ctx, key, fields, resolver.Options{
			MinAcceptConfidence: cfg.Resolver.MinAcceptConfidence,
			MaxAdaptersTried:    cfg.Resolver.MaxAdaptersTried,
			ForceRefresh:        resolveForceRefresh,
			AllowDowngrade:      resolveAllowDowngrade,
		})
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		if !resolveNoPersist {
			if err := resolver.Persist(ctx, env.Repo, result); err != nil {
				// The result is still printed below so the run isn't lost.
				zap.L().Error("persist failed, entity can be retried", zap.Error(err))
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveType, "type", "film", "entity type (film|person)")
	resolveCmd.Flags().StringVar(&resolveID, "id", "", "stable entity ID")
	resolveCmd.Flags().StringVar(&resolveTitle, "title", "", "entity title")
	resolveCmd.Flags().IntVar(&resolveYear, "year", 0, "release/birth year")
	resolveCmd.Flags().StringVar(&resolveFields, "fields", "", "comma-separated fields (default: all schema fields)")
	resolveCmd.Flags().BoolVar(&resolveForceRefresh, "force-refresh", false, "bypass the response cache")
	resolveCmd.Flags().BoolVar(&resolveAllowDowngrade, "allow-downgrade", false, "resolve from scratch, allowing confidence to drop")
	resolveCmd.Flags().BoolVar(&resolveNoPersist, "no-persist", false, "print the result without writing to the store")
	rootCmd.AddCommand(resolveCmd)
}
