package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"lockstep/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if code, ok := services.ExitCode(err); ok {
			os.Exit(code)
		}
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
			if services.Usage(err) {
				fmt.Fprintln(os.Stderr, "run `lockstep --help` for usage")
			}
		}
		os.Exit(1)
	}
}
