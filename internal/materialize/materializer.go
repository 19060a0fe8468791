package materialize

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"lockstep/internal/cache"
	"lockstep/internal/logging"
	"lockstep/internal/services"
	"lockstep/internal/workspace"
)

// EnvManager is the subset of the package-manager client the materializer
// needs.
type EnvManager interface {
	CreateFromLock(ctx context.Context, prefix, lockPath string) error
	RunIn(ctx context.Context, prefix, label string, argv []string) (int, error)
}

// PipInstaller runs the secondary installer pass.
type PipInstaller interface {
	Install(ctx context.Context, prefix, requirementsPath string) error
}

// Handle identifies a live materialized environment.
type Handle struct {
	Name string
	Path string
}

// Materializer turns validated explicit locks into live environment
// directories.
type Materializer struct {
	tmpRoot string
	manager EnvManager
	pip     PipInstaller
	logger  *slog.Logger
}

// New constructs a materializer staging under tmpRoot.
func New(tmpRoot string, manager EnvManager, pip PipInstaller, logger *slog.Logger) (*Materializer, error) {
	if manager == nil {
		return nil, errors.New("env manager required")
	}
	if pip == nil {
		return nil, errors.New("pip installer required")
	}
	return &Materializer{
		tmpRoot: tmpRoot,
		manager: manager,
		pip:     pip,
		logger:  logging.NewComponentLogger(logger, "materialize"),
	}, nil
}

// Create builds the environment at envDir from the lock file, runs the
// secondary installer for any pip entries, and writes the success marker only
// after both steps succeed. Any pre-existing directory at envDir is deleted
// wholesale first. On failure the partial directory stays behind without a
// marker, so the next invocation treats it as stale and rebuilds from
// scratch.
func (m *Materializer) Create(ctx context.Context, envDir, lockPath string, pipReqs []string) error {
	if err := os.RemoveAll(envDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrMaterialize, "materialize", "remove stale", envDir, err)
	}

	m.logger.InfoContext(ctx, "creating environment",
		logging.String("path", envDir),
		logging.String(logging.FieldArtifact, lockPath))
	if err := m.manager.CreateFromLock(ctx, envDir, lockPath); err != nil {
		return services.Wrap(services.ErrMaterialize, "materialize", "create", "", err)
	}

	if len(pipReqs) > 0 {
		if err := m.pipPass(ctx, envDir, pipReqs); err != nil {
			return err
		}
	}

	if err := cache.WriteCompleteMarker(envDir); err != nil {
		return services.Wrap(services.ErrMaterialize, "materialize", "write marker", "", err)
	}
	return nil
}

func (m *Materializer) pipPass(ctx context.Context, envDir string, pipReqs []string) error {
	ws, err := workspace.Acquire(m.tmpRoot, "pip")
	if err != nil {
		return services.Wrap(services.ErrMaterialize, "materialize", "stage pip requirements", "", err)
	}
	defer ws.Release()

	reqPath := ws.Join("requirements.txt")
	content := strings.Join(pipReqs, "\n") + "\n"
	if err := os.WriteFile(reqPath, []byte(content), 0o644); err != nil {
		return services.Wrap(services.ErrMaterialize, "materialize", "write pip requirements", "", err)
	}

	m.logger.InfoContext(ctx, "running secondary installer",
		logging.String("path", envDir),
		logging.Int("entries", len(pipReqs)))
	return m.pip.Install(ctx, envDir, reqPath)
}

// Run executes argv inside the environment with standard streams passed
// through unmodified and the child's exit code returned verbatim.
func (m *Materializer) Run(ctx context.Context, handle Handle, argv []string) (int, error) {
	return m.manager.RunIn(ctx, handle.Path, "lockstep-"+handle.Name, argv)
}
