package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lockstep/internal/config"
	"lockstep/internal/input"
	"lockstep/internal/pipeline"
	"lockstep/internal/services"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var forceFlag bool
	var forceInitFlag bool
	var builderFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "lockstep [spec-file] [-- command ...]",
		Short: "Reproducible environments from declarative spec files",
		Long: "Lockstep materializes reproducible software environments from\n" +
			"declarative spec files, caching every derived artifact by content hash\n" +
			"so unchanged inputs never trigger regeneration. Trailing arguments\n" +
			"after -- run inside the resulting environment.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			specArgs, trailing := splitDashArgs(cmd, args)
			if len(specArgs) == 0 {
				return cmd.Help()
			}
			if len(specArgs) > 1 {
				return services.Wrap(services.ErrInput, "cli", "args",
					fmt.Sprintf("expected one spec file, got %d", len(specArgs)), nil)
			}
			return runSpec(cmd, ctx, specArgs[0], trailing, pipeline.Options{
				Force:     forceFlag,
				ForceInit: forceInitFlag,
			}, builderFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Regenerate the spec's own artifact even when cached")
	rootCmd.Flags().BoolVar(&forceInitFlag, "force-init", false, "Refetch the package manager and rebuild the toolchain")
	rootCmd.Flags().StringVar(&builderFlag, "builder", "", "Recipe build helper (boa or rattler-build)")

	rootCmd.AddCommand(newInitCommand(ctx))
	rootCmd.AddCommand(newInitRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCleanCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func runSpec(cmd *cobra.Command, ctx *commandContext, specPath string, trailing []string, opts pipeline.Options, builderFlag string) error {
	runCtx := services.WithRequestID(cmd.Context(), uuid.NewString())

	// Classify before bootstrap so a bad spec file is reported without
	// triggering a binary fetch or any cache writes.
	file, err := input.Read(specPath)
	if err != nil {
		return err
	}

	deps, err := ctx.bootstrap(runCtx, opts.ForceInit, builderFlag)
	if err != nil {
		return err
	}

	result, err := deps.runner.RunFile(runCtx, file, opts)
	if err != nil {
		return err
	}

	if result.Env != nil && !bannerSuppressed() {
		fmt.Fprintf(cmd.OutOrStdout(), "environment ready: %s\n", result.Env.Path)
	}

	if len(trailing) > 0 {
		if result.Env == nil {
			return services.Wrap(services.ErrInput, "cli", "run",
				"this spec kind produces no environment to run commands in", nil)
		}
		code, err := deps.materializer.Run(runCtx, *result.Env, trailing)
		if err != nil {
			return err
		}
		if code != 0 {
			return &services.ExitCodeError{Code: code}
		}
	}
	return nil
}

// splitDashArgs separates positional arguments from the command vector after
// the -- terminator.
func splitDashArgs(cmd *cobra.Command, args []string) (positional, trailing []string) {
	at := cmd.ArgsLenAtDash()
	if at < 0 {
		return args, nil
	}
	return args[:at], args[at:]
}

func bannerSuppressed() bool {
	value := strings.TrimSpace(os.Getenv(config.EnvNoBanner))
	return value != "" && value != "0"
}
