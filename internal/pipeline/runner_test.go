package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lockstep/internal/cache"
	"lockstep/internal/contenthash"
	"lockstep/internal/lockfile"
	"lockstep/internal/services"
	"lockstep/internal/testsupport"
)

type fakeToolchain struct {
	dir     string
	ensures int
	forced  int
}

func (f *fakeToolchain) Path() string { return f.dir }

func (f *fakeToolchain) Ensure(_ context.Context, forceRefresh bool) error {
	f.ensures++
	if forceRefresh {
		f.forced++
	}
	return nil
}

func (f *fakeToolchain) Run(_ context.Context, _ []string) (int, error) {
	return 0, nil
}

type fakeResolver struct {
	lockBody string
	calls    int
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, workDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(workDir, "resolved-linux-64.lock")
	if err := os.WriteFile(out, []byte(f.lockBody), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

type fakeEnvs struct {
	creates []string
	reqs    [][]string
	err     error
}

func (f *fakeEnvs) Create(_ context.Context, envDir, _ string, pipReqs []string) error {
	f.creates = append(f.creates, envDir)
	f.reqs = append(f.reqs, pipReqs)
	if f.err != nil {
		return f.err
	}
	if err := os.MkdirAll(envDir, 0o755); err != nil {
		return err
	}
	return cache.WriteCompleteMarker(envDir)
}

type fakeBuilder struct {
	recipes []string
}

func (f *fakeBuilder) Build(_ context.Context, recipePath string) error {
	f.recipes = append(f.recipes, recipePath)
	return nil
}

type harness struct {
	runner    *Runner
	toolchain *fakeToolchain
	resolver  *fakeResolver
	envs      *fakeEnvs
	builder   *fakeBuilder
	envsRoot  string
	specsDir  string
}

const resolvedBody = "https://conda.anaconda.org/conda-forge/linux-64/python-3.11.8-h123.conda#0011\n" +
	"https://conda.anaconda.org/conda-forge/linux-64/numpy-1.26.4-h456.conda#2233\n"

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		toolchain: &fakeToolchain{dir: filepath.Join(root, "toolchain", "v1")},
		resolver:  &fakeResolver{lockBody: lockfile.ExplicitMarker + "\n" + resolvedBody},
		envs:      &fakeEnvs{},
		builder:   &fakeBuilder{},
		envsRoot:  filepath.Join(root, "envs"),
		specsDir:  filepath.Join(root, "specs"),
	}
	if err := os.MkdirAll(h.specsDir, 0o755); err != nil {
		t.Fatalf("mkdir specs: %v", err)
	}
	runner, err := New(Params{
		EnvsRoot:  h.envsRoot,
		TmpRoot:   filepath.Join(root, "tmp"),
		FlocksDir: filepath.Join(root, "flocks"),
		Toolchain: h.toolchain,
		Resolver:  h.resolver,
		Envs:      h.envs,
		Builder:   h.builder,
	})
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	h.runner = runner
	return h
}

func (h *harness) writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	return testsupport.WriteSpec(t, filepath.Join(h.specsDir, name), content)
}

const descriptionBody = `name: analytics
channels:
  - conda-forge
dependencies:
  - python=3.11
  - numpy
`

func TestDescriptionResolvesAndMaterializes(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)

	result, err := h.runner.Run(context.Background(), descPath, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.resolver.calls != 1 {
		t.Fatalf("resolver calls = %d, want 1", h.resolver.calls)
	}
	if len(h.envs.creates) != 1 {
		t.Fatalf("env creates = %d, want 1", len(h.envs.creates))
	}

	lockPath := filepath.Join(h.specsDir, "analytics.lock")
	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("published lock missing: %v", err)
	}
	embedded, ok := lockfile.Parse(data).Provenance()
	if !ok {
		t.Fatalf("published lock carries no provenance")
	}
	if want := contenthash.DigestDescription([]byte(descriptionBody)); embedded != want {
		t.Fatalf("provenance = %s, want %s", embedded.Hex(), want.Hex())
	}

	if result.Env == nil || result.Env.Name != "analytics" {
		t.Fatalf("unexpected result env: %+v", result.Env)
	}
	if !strings.HasPrefix(filepath.Base(result.Env.Path), "analytics-") {
		t.Fatalf("env dir %q not name-hash qualified", result.Env.Path)
	}
	if result.LockPath != lockPath {
		t.Fatalf("result lock path = %q, want %q", result.LockPath, lockPath)
	}
}

func TestSecondRunRegeneratesNothing(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)

	for i := 0; i < 2; i++ {
		if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if h.resolver.calls != 1 {
		t.Fatalf("resolver ran on a valid cache: %d calls", h.resolver.calls)
	}
	if len(h.envs.creates) != 1 {
		t.Fatalf("environment recreated on a valid cache: %d creates", len(h.envs.creates))
	}
}

func TestEditedDescriptionReplacesLock(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)
	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	edited := descriptionBody + "  - pandas\n"
	h.writeSpec(t, "analytics.yml", edited)
	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if h.resolver.calls != 2 {
		t.Fatalf("edited description did not trigger re-resolve: %d calls", h.resolver.calls)
	}

	data, err := os.ReadFile(filepath.Join(h.specsDir, "analytics.lock"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if n := strings.Count(string(data), lockfile.ProvenanceKey); n != 1 {
		t.Fatalf("lock has %d provenance lines, want exactly 1 after overwrite", n)
	}
	embedded, _ := lockfile.Parse(data).Provenance()
	if want := contenthash.DigestDescription([]byte(edited)); embedded != want {
		t.Fatalf("provenance not updated for edited description")
	}
}

func TestForeignLockIsRegenerated(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)
	h.writeSpec(t, "analytics.lock", lockfile.ExplicitMarker+"\n"+resolvedBody)

	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.resolver.calls != 1 {
		t.Fatalf("hand-written lock without provenance was trusted")
	}
	data, _ := os.ReadFile(filepath.Join(h.specsDir, "analytics.lock"))
	if _, ok := lockfile.Parse(data).Provenance(); !ok {
		t.Fatalf("regenerated lock carries no provenance")
	}
}

func TestForceRegeneratesValidLock(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)
	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := h.runner.Run(context.Background(), descPath, Options{Force: true}); err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if h.resolver.calls != 2 {
		t.Fatalf("force did not bypass a valid lock: %d calls", h.resolver.calls)
	}
}

func TestResolverFailurePreservesExistingLock(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)
	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := os.ReadFile(filepath.Join(h.specsDir, "analytics.lock"))
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}

	h.writeSpec(t, "analytics.yml", descriptionBody+"  - pandas\n")
	h.resolver.err = services.Wrap(services.ErrResolver, "lock", "resolve", "exit code 1", nil)
	_, err = h.runner.Run(context.Background(), descPath, Options{})
	if !errors.Is(err, services.ErrResolver) {
		t.Fatalf("expected resolver error, got %v", err)
	}

	after, err := os.ReadFile(filepath.Join(h.specsDir, "analytics.lock"))
	if err != nil {
		t.Fatalf("lock vanished after failed resolve: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("failed resolve mutated the published lock")
	}
}

func TestExplicitLockMaterializesDirectly(t *testing.T) {
	h := newHarness(t)
	lockPath := h.writeSpec(t, "data.lock", lockfile.ExplicitMarker+"\n"+resolvedBody)

	result, err := h.runner.Run(context.Background(), lockPath, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.resolver.calls != 0 {
		t.Fatalf("resolver invoked for a pre-resolved lock")
	}
	if h.toolchain.ensures != 0 {
		t.Fatalf("toolchain ensured although no resolver run was needed")
	}
	if result.Env == nil || result.Env.Name != "data" {
		t.Fatalf("env name = %+v, want data", result.Env)
	}
}

func TestDistinctLockContentsCoexist(t *testing.T) {
	h := newHarness(t)
	lockPath := h.writeSpec(t, "data.lock", lockfile.ExplicitMarker+"\n"+resolvedBody)
	first, err := h.runner.Run(context.Background(), lockPath, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	h.writeSpec(t, "data.lock", lockfile.ExplicitMarker+"\n"+resolvedBody+
		"https://conda.anaconda.org/conda-forge/linux-64/pandas-2.2.1-h789.conda#4455\n")
	second, err := h.runner.Run(context.Background(), lockPath, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Env.Path == second.Env.Path {
		t.Fatalf("different lock contents mapped to one environment directory")
	}
	if len(h.envs.creates) != 2 {
		t.Fatalf("env creates = %d, want 2", len(h.envs.creates))
	}
	if _, err := os.Stat(first.Env.Path); err != nil {
		t.Fatalf("first environment evicted by second: %v", err)
	}
}

func TestExcludedPipEntriesNeverReachInstaller(t *testing.T) {
	h := newHarness(t)
	h.resolver.lockBody = lockfile.ExplicitMarker + "\n" + resolvedBody +
		lockfile.PipPrefix + "requests==2.31.0\n" +
		lockfile.PipPrefix + "internal-client==1.4\n"
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody+"exclude-pip:\n  - requests\n")

	if _, err := h.runner.Run(context.Background(), descPath, Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(h.specsDir, "analytics.lock"))
	if strings.Contains(string(data), "requests==2.31.0") {
		t.Fatalf("excluded entry survived into the published lock")
	}
	if len(h.envs.reqs) != 1 || len(h.envs.reqs[0]) != 1 || h.envs.reqs[0][0] != "internal-client==1.4" {
		t.Fatalf("installer received wrong pip set: %v", h.envs.reqs)
	}
}

func TestRecipeBuildsAndStops(t *testing.T) {
	h := newHarness(t)
	recipePath := h.writeSpec(t, "meta.yaml", "package:\n  name: widget\n  version: 1.0\n")

	result, err := h.runner.Run(context.Background(), recipePath, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.builder.recipes) != 1 || h.builder.recipes[0] != recipePath {
		t.Fatalf("builder not invoked with recipe: %v", h.builder.recipes)
	}
	if h.toolchain.ensures != 1 {
		t.Fatalf("toolchain not ensured before build")
	}
	if result.Env != nil {
		t.Fatalf("recipe stage produced an environment handle")
	}
}

func TestForceInitReachesToolchain(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.yml", descriptionBody)

	if _, err := h.runner.Run(context.Background(), descPath, Options{ForceInit: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.toolchain.forced != 1 {
		t.Fatalf("force-init not propagated to toolchain ensure")
	}
}

func TestLockRequestDescriptionPublishesSiblingLock(t *testing.T) {
	h := newHarness(t)
	descPath := h.writeSpec(t, "analytics.lock.yml", descriptionBody)

	result, err := h.runner.Run(context.Background(), descPath, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	wantLock := filepath.Join(h.specsDir, "analytics.lock")
	if result.LockPath != wantLock {
		t.Fatalf("lock published to %q, want %q", result.LockPath, wantLock)
	}
	if _, err := os.Stat(wantLock); err != nil {
		t.Fatalf("published lock missing: %v", err)
	}
	if _, err := os.Stat(wantLock + ".lock"); !os.IsNotExist(err) {
		t.Fatalf("lock-request description produced a doubled suffix")
	}
}

func TestLockPathFor(t *testing.T) {
	cases := map[string]string{
		"/w/analytics.yml":      "/w/analytics.lock",
		"/w/analytics.yaml":     "/w/analytics.lock",
		"/w/analytics.lock.yml": "/w/analytics.lock",
	}
	for in, want := range cases {
		if got := LockPathFor(in); got != want {
			t.Errorf("LockPathFor(%q) = %q, want %q", in, got, want)
		}
	}
}
