package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"lockstep/internal/cache"
	"lockstep/internal/workspace"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var incompleteFlag bool
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staging workspaces and cached environments",
		Long: "Removes staging workspaces older than --max-age. With --incomplete,\n" +
			"also removes environments left behind by interrupted creations. With\n" +
			"--all, removes every cached environment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			result := workspace.CleanStale(cfg.TmpDir(), maxAge, logger)
			fmt.Fprintf(out, "removed %d stale workspace(s)\n", len(result.Removed))
			for _, failure := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", failure.Path, failure.Error)
			}

			if !incompleteFlag && !allFlag {
				return nil
			}
			stats, err := cache.GatherStats(cfg.EnvsDir())
			if err != nil {
				return err
			}
			removed := 0
			for _, entry := range stats.Entries {
				if !allFlag && entry.Complete {
					continue
				}
				target := filepath.Join(cfg.EnvsDir(), entry.Name)
				if err := os.RemoveAll(target); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to remove %s: %v\n", target, err)
					continue
				}
				removed++
			}
			fmt.Fprintf(out, "removed %d environment(s)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove workspaces older than this")
	cmd.Flags().BoolVar(&incompleteFlag, "incomplete", false, "Also remove environments without a completion marker")
	cmd.Flags().BoolVar(&allFlag, "all", false, "Remove every cached environment")
	return cmd
}
