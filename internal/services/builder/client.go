package builder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"lockstep/internal/services"
)

// Runner executes a command vector inside the toolchain environment.
type Runner interface {
	Run(ctx context.Context, argv []string) (int, error)
}

// Helpers recognized as recipe build tools.
const (
	HelperBoa          = "boa"
	HelperRattlerBuild = "rattler-build"
)

// Client turns a package recipe into a binary package via the selected build
// helper. The recipe stage is leaf-only: the pipeline terminates after it.
type Client struct {
	runner Runner
	helper string
}

// New constructs a build client for the given helper.
func New(runner Runner, helper string) (*Client, error) {
	if runner == nil {
		return nil, errors.New("toolchain runner required")
	}
	switch helper = strings.TrimSpace(helper); helper {
	case HelperBoa, HelperRattlerBuild:
	default:
		return nil, fmt.Errorf("unsupported build helper %q", helper)
	}
	return &Client{runner: runner, helper: helper}, nil
}

// Build runs the helper against the recipe. The produced package is opaque
// to lockstep; only the exit status matters.
func (c *Client) Build(ctx context.Context, recipePath string) error {
	var argv []string
	switch c.helper {
	case HelperRattlerBuild:
		argv = []string{HelperRattlerBuild, "build", "--recipe", recipePath}
	default:
		argv = []string{HelperBoa, "build", filepath.Dir(recipePath)}
	}
	code, err := c.runner.Run(ctx, argv)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "build", c.helper, "", err)
	}
	if code != 0 {
		return services.Wrap(services.ErrExternalTool, "build", c.helper,
			fmt.Sprintf("exit code %d", code), nil)
	}
	return nil
}
