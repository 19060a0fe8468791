package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lockstep/internal/cache"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached environments and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stats, err := cache.GatherStats(cfg.EnvsDir())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(stats.Entries) == 0 {
				fmt.Fprintln(out, "no cached environments")
			} else {
				fmt.Fprintln(out, statusTable(stats.Entries))
			}

			fmt.Fprintf(out, "cache root: %s\n", cfg.CacheRoot)
			fmt.Fprintf(out, "environments: %d using %s\n", len(stats.Entries), humanSize(stats.TotalBytes))
			if stats.FSBytes > 0 {
				fmt.Fprintf(out, "filesystem: %s free of %s\n",
					humanSize(int64(stats.FreeBytes)), humanSize(int64(stats.FSBytes)))
			}
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	value := float64(bytes)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB"}
	for _, suffix := range suffixes {
		value /= unit
		if value < unit || suffix == suffixes[len(suffixes)-1] {
			return fmt.Sprintf("%.1f %s", value, suffix)
		}
	}
	return fmt.Sprintf("%d B", bytes)
}
