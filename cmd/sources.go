package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/filmgrid/enrich-cli/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and their resolution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		printPool := func(label string, adapters []source.Adapter) {
			fmt.Printf("%s:\n", label)
			for _, a := range adapters {
				fields := make([]string, 0, len(a.Fields()))
				for _, f := range a.Fields() {
					fields = append(fields, string(f))
				}
				fmt.Printf("  %2d. %-16s confidence=%.2f fields=%s\n",
					a.Priority(), a.Name(), a.BaseConfidence(), strings.Join(fields, ","))
			}
		}

		printPool("primary", env.Registry.Primary())
		printPool("comparison", env.Registry.Comparison())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
