package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"lockstep/internal/cache"
	"lockstep/internal/contenthash"
	"lockstep/internal/envspec"
	"lockstep/internal/fileutil"
	"lockstep/internal/input"
	"lockstep/internal/lockfile"
	"lockstep/internal/logging"
	"lockstep/internal/materialize"
	"lockstep/internal/services"
	"lockstep/internal/workspace"
)

// Toolchain is the helper environment stages run external tools inside of.
type Toolchain interface {
	Path() string
	Ensure(ctx context.Context, forceRefresh bool) error
	Run(ctx context.Context, argv []string) (int, error)
}

// Resolver turns a description into an explicit lock file inside workDir.
type Resolver interface {
	Resolve(ctx context.Context, descPath, workDir string) (string, error)
}

// Environments creates environment directories from explicit locks.
type Environments interface {
	Create(ctx context.Context, envDir, lockPath string, pipReqs []string) error
}

// Builder turns a package recipe into a binary package.
type Builder interface {
	Build(ctx context.Context, recipePath string) error
}

// Options controls one pipeline invocation.
type Options struct {
	// Force regenerates at the input's own level: the lock for a
	// description, the environment for a directly supplied lock.
	Force bool
	// ForceInit rebuilds the toolchain environment before use.
	ForceInit bool
}

// Result reports what the terminal stage produced.
type Result struct {
	Kind     input.Kind
	LockPath string
	Env      *materialize.Handle
}

// Params configures runner construction.
type Params struct {
	EnvsRoot  string
	TmpRoot   string
	FlocksDir string
	Toolchain Toolchain
	Resolver  Resolver
	Envs      Environments
	Builder   Builder
	Logger    *slog.Logger
}

// Runner walks an input toward the terminal materialized-environment state,
// consulting the artifact cache at each hop and regenerating only what is
// stale. Within one invocation stages run strictly in order; a later stage
// never starts before its governing artifact is fully published.
type Runner struct {
	envsRoot  string
	tmpRoot   string
	flocksDir string
	toolchain Toolchain
	resolver  Resolver
	envs      Environments
	builder   Builder
	logger    *slog.Logger
}

// New constructs a pipeline runner.
func New(params Params) (*Runner, error) {
	if params.EnvsRoot == "" || params.TmpRoot == "" {
		return nil, errors.New("pipeline: cache directories required")
	}
	if params.Toolchain == nil || params.Resolver == nil || params.Envs == nil || params.Builder == nil {
		return nil, errors.New("pipeline: all stage collaborators required")
	}
	flocksDir := params.FlocksDir
	if flocksDir == "" {
		flocksDir = filepath.Join(params.TmpRoot, "..", "flocks")
	}
	return &Runner{
		envsRoot:  params.EnvsRoot,
		tmpRoot:   params.TmpRoot,
		flocksDir: flocksDir,
		toolchain: params.Toolchain,
		resolver:  params.Resolver,
		envs:      params.Envs,
		builder:   params.Builder,
		logger:    logging.NewComponentLogger(params.Logger, "pipeline"),
	}, nil
}

// Run classifies the spec file and drives it to its terminal state.
func (r *Runner) Run(ctx context.Context, specPath string, opts Options) (*Result, error) {
	file, err := input.Read(specPath)
	if err != nil {
		return nil, err
	}
	return r.RunFile(ctx, file, opts)
}

// RunFile drives an already classified input. Callers that need input errors
// surfaced before any other side effect classify with input.Read first and
// hand the result here.
func (r *Runner) RunFile(ctx context.Context, file *input.File, opts Options) (*Result, error) {
	r.logger.InfoContext(ctx, "classified input",
		logging.String("path", file.Path),
		logging.String("kind", file.Kind.String()))

	switch file.Kind {
	case input.KindEnvironmentDescription, input.KindLockableDescription:
		return r.runDescription(ctx, file, opts)
	case input.KindExplicitLock:
		name := envNameFromLockPath(file.Path)
		return r.runLock(ctx, file.Path, name, file.Data, opts.Force)
	case input.KindPackageRecipe:
		return r.runRecipe(ctx, file, opts)
	default:
		return nil, services.Wrap(services.ErrInput, "pipeline", "dispatch",
			fmt.Sprintf("no handler for input kind %s", file.Kind), nil)
	}
}

// runDescription drives description → explicit lock, then chains into the
// lock stage. Both description kinds converge here: the lockable form is
// resolver input just the same, and its output lands on the same lock path.
func (r *Runner) runDescription(ctx context.Context, file *input.File, opts Options) (*Result, error) {
	desc, err := envspec.Parse(file.Data)
	if err != nil {
		return nil, services.Wrap(services.ErrInput, string(stageLock), "parse description", file.Path, err)
	}

	ctx = services.WithStage(ctx, string(stageLock))
	hash := contenthash.DigestDescription(file.Data)
	lockPath := LockPathFor(file.Path)

	decision, err := cache.ForLock(hash, lockPath, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("inspect lock candidate: %w", err)
	}
	r.logDecision(ctx, lockPath, hash, decision)

	if decision.Rebuild() {
		release := r.lockArtifact(ctx, lockPath)
		// Another invocation may have finished the same rebuild while we
		// waited on the artifact lock.
		decision, err = cache.ForLock(hash, lockPath, opts.Force)
		if err != nil {
			release()
			return nil, fmt.Errorf("inspect lock candidate: %w", err)
		}
		if decision.Rebuild() {
			err = r.resolveAndPublish(ctx, file, desc, lockPath, hash, opts)
		}
		release()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, fmt.Errorf("read published lock: %w", err)
	}
	return r.runLock(ctx, lockPath, desc.EnvName(file.Path), data, false)
}

// resolveAndPublish stages a resolver run in a scoped workspace, applies the
// pip exclusion filter, appends provenance, and publishes atomically. A
// resolver failure discards the workspace; no partial lock is ever published.
func (r *Runner) resolveAndPublish(ctx context.Context, file *input.File, desc *envspec.Description, lockPath string, hash contenthash.Hash, opts Options) error {
	if err := r.ensureToolchain(ctx, opts.ForceInit); err != nil {
		return err
	}

	ws, err := workspace.Acquire(r.tmpRoot, "resolve")
	if err != nil {
		return err
	}
	defer ws.Release()

	stagedDesc := ws.Join(filepath.Base(file.Path))
	if err := fileutil.CopyFile(file.Path, stagedDesc); err != nil {
		return fmt.Errorf("stage description: %w", err)
	}

	resolvedPath, err := r.resolver.Resolve(ctx, stagedDesc, ws.Path())
	if err != nil {
		return err
	}
	resolved, err := os.ReadFile(resolvedPath)
	if err != nil {
		return services.Wrap(services.ErrResolver, string(stageLock), "read resolver output", resolvedPath, err)
	}

	lines := lockfile.Parse(resolved).Lines
	lines = lockfile.FilterExcluded(lines, desc.ExcludePip)
	lines = lockfile.WithProvenance(lines, hash)

	published := (&lockfile.Lock{Lines: lines}).Bytes()
	if err := fileutil.WriteFileAtomic(lockPath, published, 0o644); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "published lock",
		logging.String(logging.FieldArtifact, lockPath),
		logging.String(logging.FieldInputHash, hash.Hex()),
		logging.Int("excluded", len(desc.ExcludePip)))
	return nil
}

// runLock drives explicit lock → materialized environment, the terminal
// state. Environment names embed the lock's content hash, so two different
// lock contents for one logical name coexist as distinct cache entries.
func (r *Runner) runLock(ctx context.Context, lockPath, name string, data []byte, force bool) (*Result, error) {
	lock := lockfile.Parse(data)
	if !lock.IsExplicit() {
		return nil, services.Wrap(services.ErrInput, string(stageEnv), "validate lock",
			fmt.Sprintf("%s is not an explicit lock", lockPath), nil)
	}

	ctx = services.WithStage(ctx, string(stageEnv))
	lockHash := contenthash.Digest(data)
	envDir := filepath.Join(r.envsRoot, cache.EnvironmentDirName(name, lockHash))

	decision, err := cache.ForEnvironment(envDir, force)
	if err != nil {
		return nil, fmt.Errorf("inspect environment candidate: %w", err)
	}
	r.logDecision(ctx, envDir, lockHash, decision)

	if decision.Rebuild() {
		release := r.lockArtifact(ctx, envDir)
		decision, err = cache.ForEnvironment(envDir, force)
		if err != nil {
			release()
			return nil, fmt.Errorf("inspect environment candidate: %w", err)
		}
		if decision.Rebuild() {
			err = r.envs.Create(ctx, envDir, lockPath, lock.PipRequirements())
		}
		release()
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Kind:     input.KindExplicitLock,
		LockPath: lockPath,
		Env:      &materialize.Handle{Name: name, Path: envDir},
	}, nil
}

// runRecipe is leaf-only: the built package is opaque and nothing chains
// after it.
func (r *Runner) runRecipe(ctx context.Context, file *input.File, opts Options) (*Result, error) {
	ctx = services.WithStage(ctx, "build")
	if err := r.ensureToolchain(ctx, opts.ForceInit); err != nil {
		return nil, err
	}
	if err := r.builder.Build(ctx, file.Path); err != nil {
		return nil, err
	}
	return &Result{Kind: input.KindPackageRecipe}, nil
}

type stage string

const (
	stageLock stage = "lock"
	stageEnv  stage = "materialize"
)

// logDecision reports a cache check; the stage rides on the context and is
// folded into the record by the logging handler.
func (r *Runner) logDecision(ctx context.Context, artifact string, hash contenthash.Hash, decision cache.Decision) {
	attrs := logging.Args(
		logging.String(logging.FieldArtifact, artifact),
		logging.String(logging.FieldInputHash, hash.Hex()),
		logging.String(logging.FieldDecision, decision.String()),
	)
	if decision == cache.Foreign {
		r.logger.WarnContext(ctx, "candidate artifact has no provenance marker, rebuilding", attrs...)
		return
	}
	r.logger.InfoContext(ctx, "cache decision", attrs...)
}

// ensureToolchain builds the toolchain under its artifact lock. Ensure's own
// marker check doubles as the post-acquisition re-check.
func (r *Runner) ensureToolchain(ctx context.Context, force bool) error {
	release := r.lockArtifact(ctx, r.toolchain.Path())
	defer release()
	return r.toolchain.Ensure(ctx, force)
}

// lockArtifact serializes concurrent rebuilds of one artifact with an
// advisory file lock. Lock failures degrade to the uncoordinated
// last-writer-wins behavior rather than failing the pipeline; the atomic
// publish keeps any single artifact internally consistent either way.
func (r *Runner) lockArtifact(ctx context.Context, target string) (release func()) {
	if err := os.MkdirAll(r.flocksDir, 0o755); err != nil {
		r.logger.WarnContext(ctx, "artifact locking unavailable", logging.Error(err))
		return func() {}
	}
	name := contenthash.Digest([]byte(target)).Short() + ".flock"
	fl := flock.New(filepath.Join(r.flocksDir, name))
	if err := fl.Lock(); err != nil {
		r.logger.WarnContext(ctx, "artifact locking unavailable",
			logging.String(logging.FieldArtifact, target),
			logging.Error(err))
		return func() {}
	}
	return func() {
		_ = fl.Unlock()
	}
}

// LockPathFor derives the lock candidate path a description governs: the
// description path with its YAML suffix replaced by ".lock". A lock-request
// description "env.lock.yml" therefore publishes to "env.lock".
func LockPathFor(descPath string) string {
	for _, ext := range []string{".yml", ".yaml"} {
		if strings.HasSuffix(descPath, ext) {
			stem := strings.TrimSuffix(descPath, ext)
			if strings.HasSuffix(stem, ".lock") {
				return stem
			}
			return stem + ".lock"
		}
	}
	return descPath + ".lock"
}

func envNameFromLockPath(lockPath string) string {
	base := filepath.Base(lockPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return "env"
	}
	return base
}
