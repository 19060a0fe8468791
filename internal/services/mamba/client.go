package mamba

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"lockstep/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	// Run executes binary with args, the three standard streams inherited
	// from the parent, and returns the child's exit code.
	Run(ctx context.Context, binary string, args []string, extraEnv []string) (int, error)
	// Output executes binary with args and captures combined output.
	Output(ctx context.Context, binary string, args []string, extraEnv []string) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the micromamba CLI.
type Client struct {
	binary string
	exec   Executor
}

// New constructs a micromamba client around the given binary path.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("micromamba binary required")
	}
	client := &Client{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Version returns the binary's self-reported version.
func (c *Client) Version(ctx context.Context) (string, error) {
	out, err := c.exec.Output(ctx, c.binary, []string{"--version"}, bannerEnv())
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "mamba", "version", "", err)
	}
	return strings.TrimSpace(out), nil
}

// CreateFromLock materializes packages from an explicit lock file into the
// target prefix. Failure is reported via non-zero exit; no cleanup happens
// here since the caller owns the prefix lifecycle.
func (c *Client) CreateFromLock(ctx context.Context, prefix, lockPath string) error {
	args := []string{"create", "--yes", "--prefix", prefix, "--file", lockPath}
	out, err := c.exec.Output(ctx, c.binary, args, bannerEnv())
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mamba", "create",
			fmt.Sprintf("prefix %s: %s", prefix, tail(out)), err)
	}
	return nil
}

// CreateFromSpecs creates an environment from loose package specs. Used only
// for the toolchain environment; everything else goes through explicit locks.
func (c *Client) CreateFromSpecs(ctx context.Context, prefix string, channels, specs []string) error {
	args := []string{"create", "--yes", "--prefix", prefix}
	for _, channel := range channels {
		args = append(args, "--channel", channel)
	}
	args = append(args, specs...)
	out, err := c.exec.Output(ctx, c.binary, args, bannerEnv())
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "mamba", "create",
			fmt.Sprintf("prefix %s: %s", prefix, tail(out)), err)
	}
	return nil
}

// RunIn executes argv inside the prefix with inherited standard streams and
// returns the child's exit code verbatim. The label rides along as process
// metadata for observability.
func (c *Client) RunIn(ctx context.Context, prefix, label string, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("command vector required")
	}
	args := []string{"run", "--prefix", prefix}
	if label = strings.TrimSpace(label); label != "" {
		args = append(args, "--label", label)
	}
	args = append(args, argv...)
	return c.exec.Run(ctx, c.binary, args, bannerEnv())
}

// bannerEnv suppresses micromamba's decorative banner on every invocation.
func bannerEnv() []string {
	return []string{"MAMBA_NO_BANNER=1"}
}

func tail(out string) string {
	out = strings.TrimSpace(out)
	if len(out) <= 400 {
		return out
	}
	return "..." + out[len(out)-400:]
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, extraEnv []string) (int, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), extraEnv...)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (commandExecutor) Output(ctx context.Context, binary string, args []string, extraEnv []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
