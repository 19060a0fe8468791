package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lockstep/internal/cache"
	"lockstep/internal/logging"
	"lockstep/internal/services"
)

// resolverExecutable is checked inside a freshly created toolchain; its
// absence means the environment build silently failed.
const resolverExecutable = "conda-lock"

// EnvManager is the subset of the package-manager client the toolchain
// needs.
type EnvManager interface {
	CreateFromSpecs(ctx context.Context, prefix string, channels, specs []string) error
	RunIn(ctx context.Context, prefix, label string, argv []string) (int, error)
}

// Toolchain is the singleton helper environment hosting the resolver and
// auxiliary tools. It is replaced wholesale on invalidation, never patched.
type Toolchain struct {
	dir      string
	channels []string
	specs    []string
	manager  EnvManager
	logger   *slog.Logger
}

// Params configures toolchain construction.
type Params struct {
	Dir      string
	Channels []string
	Specs    []string
	Manager  EnvManager
	Logger   *slog.Logger
}

// New constructs a toolchain handle. Nothing touches the filesystem until
// Ensure runs.
func New(params Params) (*Toolchain, error) {
	if params.Dir == "" {
		return nil, errors.New("toolchain directory required")
	}
	if params.Manager == nil {
		return nil, errors.New("env manager required")
	}
	channels := params.Channels
	if len(channels) == 0 {
		channels = []string{"conda-forge"}
	}
	return &Toolchain{
		dir:      params.Dir,
		channels: channels,
		specs:    params.Specs,
		manager:  params.Manager,
		logger:   logging.NewComponentLogger(params.Logger, "toolchain"),
	}, nil
}

// Path returns the toolchain environment directory.
func (t *Toolchain) Path() string {
	return t.dir
}

// Ensure makes the toolchain environment available: a no-op when the success
// marker is present, otherwise a wholesale rebuild. Creation failure is
// fatal with no retry.
func (t *Toolchain) Ensure(ctx context.Context, forceRefresh bool) error {
	marker := filepath.Join(t.dir, cache.CompleteMarker)
	if !forceRefresh {
		if _, err := os.Stat(marker); err == nil {
			return nil
		}
	}

	if _, err := os.Stat(t.dir); err == nil {
		t.logger.InfoContext(ctx, "removing stale toolchain environment",
			logging.String("path", t.dir))
		if err := os.RemoveAll(t.dir); err != nil {
			return services.Wrap(services.ErrToolchainCreate, "toolchain", "remove stale", t.dir, err)
		}
	}

	t.logger.InfoContext(ctx, "creating toolchain environment",
		logging.String("path", t.dir),
		logging.Int("specs", len(t.specs)))
	if err := t.manager.CreateFromSpecs(ctx, t.dir, t.channels, t.specs); err != nil {
		return services.Wrap(services.ErrToolchainCreate, "toolchain", "create", "", err)
	}

	resolver := filepath.Join(t.dir, "bin", resolverExecutable)
	if _, err := os.Stat(resolver); err != nil {
		return services.Wrap(services.ErrToolchainCreate, "toolchain", "verify",
			fmt.Sprintf("resolver %s missing after create", resolver), err)
	}

	if err := cache.WriteCompleteMarker(t.dir); err != nil {
		return services.Wrap(services.ErrToolchainCreate, "toolchain", "write marker", "", err)
	}
	return nil
}

// Run dispatches a command vector inside the toolchain environment with
// inherited standard streams.
func (t *Toolchain) Run(ctx context.Context, argv []string) (int, error) {
	return t.manager.RunIn(ctx, t.dir, "lockstep-toolchain", argv)
}
