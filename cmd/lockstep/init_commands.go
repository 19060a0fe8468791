package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lockstep/internal/services"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	var forceFlag bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Fetch the package manager and build the toolchain environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := ctx.bootstrap(cmd.Context(), forceFlag, "")
			if err != nil {
				return err
			}
			if err := deps.toolchain.Ensure(cmd.Context(), forceFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "toolchain ready: %s\n", deps.toolchain.Path())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&forceFlag, "force", "f", false, "Refetch the binary and rebuild the toolchain even when cached")
	return cmd
}

func newInitRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init-run -- command [args...]",
		Short: "Run a command inside the toolchain environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := ctx.bootstrap(cmd.Context(), false, "")
			if err != nil {
				return err
			}
			if err := deps.toolchain.Ensure(cmd.Context(), false); err != nil {
				return err
			}
			code, err := deps.toolchain.Run(cmd.Context(), args)
			if err != nil {
				return err
			}
			if code != 0 {
				return &services.ExitCodeError{Code: code}
			}
			return nil
		},
	}
}
