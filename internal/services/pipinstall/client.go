package pipinstall

import (
	"context"
	"errors"
	"fmt"

	"lockstep/internal/services"
)

// PrefixRunner executes a command vector inside an environment prefix.
type PrefixRunner interface {
	RunIn(ctx context.Context, prefix, label string, argv []string) (int, error)
}

// Client runs the secondary installer for entries the primary manager cannot
// express.
type Client struct {
	runner PrefixRunner
}

// New constructs a secondary-installer client.
func New(runner PrefixRunner) (*Client, error) {
	if runner == nil {
		return nil, errors.New("prefix runner required")
	}
	return &Client{runner: runner}, nil
}

// Install installs the requirements file into the prefix with transitive
// dependency pulling disabled: every needed dependency is already pinned in
// the lock, so anything pip would pull on its own is a conflict.
func (c *Client) Install(ctx context.Context, prefix, requirementsPath string) error {
	argv := []string{
		"python", "-m", "pip", "install",
		"--no-deps",
		"--no-input",
		"--requirement", requirementsPath,
	}
	code, err := c.runner.RunIn(ctx, prefix, "lockstep-pip", argv)
	if err != nil {
		return services.Wrap(services.ErrMaterialize, "materialize", "pip install", "", err)
	}
	if code != 0 {
		return services.Wrap(services.ErrMaterialize, "materialize", "pip install",
			fmt.Sprintf("exit code %d", code), nil)
	}
	return nil
}
