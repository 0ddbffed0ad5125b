package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the source response cache",
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		removed, err := env.Repo.DeleteExpiredCacheEntries(ctx, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "cache: sweep")
		}
		zap.L().Info("cache sweep complete", zap.Int("removed", removed))
		return nil
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache entry counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		total, expired, err := env.Repo.CountCacheEntries(ctx, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "cache: status")
		}
		fmt.Printf("cache entries: %d total, %d expired, %d live\n", total, expired, total-expired)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	rootCmd.AddCommand(cacheCmd)
}
