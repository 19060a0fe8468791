package condalock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lockstep/internal/services"
)

// Runner executes a command vector inside the toolchain environment with
// inherited standard streams, returning the child's exit code.
type Runner interface {
	Run(ctx context.Context, argv []string) (int, error)
}

// Client invokes the conda-lock resolver.
type Client struct {
	runner   Runner
	platform string
}

// New constructs a resolver client pinned to a single platform.
func New(runner Runner, platform string) (*Client, error) {
	if runner == nil {
		return nil, errors.New("toolchain runner required")
	}
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return nil, errors.New("platform token required")
	}
	return &Client{runner: runner, platform: platform}, nil
}

// Resolve turns a description into an explicit lock inside workDir and
// returns the produced file's path. Flags are fixed: single pinned platform,
// accelerated (mamba) solver, explicit output kind, embedded credentials
// stripped. A non-zero resolver exit is fatal; nothing is published.
func (c *Client) Resolve(ctx context.Context, descPath, workDir string) (string, error) {
	template := filepath.Join(workDir, "resolved-{platform}.lock")
	argv := []string{
		"conda-lock", "lock",
		"--mamba",
		"--kind", "explicit",
		"--platform", c.platform,
		"--file", descPath,
		"--filename-template", template,
		"--strip-auth",
	}
	code, err := c.runner.Run(ctx, argv)
	if err != nil {
		return "", services.Wrap(services.ErrResolver, "resolve", "conda-lock", "", err)
	}
	if code != 0 {
		return "", services.Wrap(services.ErrResolver, "resolve", "conda-lock",
			fmt.Sprintf("exit code %d", code), nil)
	}

	outPath := filepath.Join(workDir, "resolved-"+c.platform+".lock")
	if _, err := os.Stat(outPath); err != nil {
		return "", services.Wrap(services.ErrResolver, "resolve", "conda-lock",
			fmt.Sprintf("expected output %s missing", outPath), err)
	}
	return outPath, nil
}
