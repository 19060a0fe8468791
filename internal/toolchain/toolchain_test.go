package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lockstep/internal/cache"
	"lockstep/internal/services"
)

type fakeManager struct {
	createCalls int
	createErr   error
	skipBinary  bool
	lastSpecs   []string
	runArgv     []string
}

func (f *fakeManager) CreateFromSpecs(_ context.Context, prefix string, _, specs []string) error {
	f.createCalls++
	f.lastSpecs = specs
	if f.createErr != nil {
		return f.createErr
	}
	if f.skipBinary {
		return os.MkdirAll(prefix, 0o755)
	}
	if err := os.MkdirAll(filepath.Join(prefix, "bin"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(prefix, "bin", "conda-lock"), []byte("#!/bin/sh\n"), 0o755)
}

func (f *fakeManager) RunIn(_ context.Context, _, _ string, argv []string) (int, error) {
	f.runArgv = argv
	return 0, nil
}

func newToolchain(t *testing.T, manager EnvManager) *Toolchain {
	t.Helper()
	tc, err := New(Params{
		Dir:     filepath.Join(t.TempDir(), "toolchain", "v3"),
		Specs:   []string{"conda-lock=2.5.7", "mamba", "yq"},
		Manager: manager,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return tc
}

func TestEnsureCreatesOnce(t *testing.T) {
	manager := &fakeManager{}
	tc := newToolchain(t, manager)

	if err := tc.Ensure(context.Background(), false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tc.Path(), cache.CompleteMarker)); err != nil {
		t.Fatalf("marker not written: %v", err)
	}

	if err := tc.Ensure(context.Background(), false); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if manager.createCalls != 1 {
		t.Fatalf("marked toolchain rebuilt: %d creates", manager.createCalls)
	}
}

func TestEnsureForceRebuildsWholesale(t *testing.T) {
	manager := &fakeManager{}
	tc := newToolchain(t, manager)
	if err := tc.Ensure(context.Background(), false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	sentinel := filepath.Join(tc.Path(), "leftover")
	if err := os.WriteFile(sentinel, []byte("x"), 0o644); err != nil {
		t.Fatalf("write sentinel: %v", err)
	}

	if err := tc.Ensure(context.Background(), true); err != nil {
		t.Fatalf("forced ensure: %v", err)
	}
	if manager.createCalls != 2 {
		t.Fatalf("force did not rebuild")
	}
	if _, err := os.Stat(sentinel); !os.IsNotExist(err) {
		t.Fatalf("stale environment not deleted wholesale")
	}
}

func TestEnsureUnmarkedDirIsRebuilt(t *testing.T) {
	manager := &fakeManager{}
	tc := newToolchain(t, manager)
	if err := os.MkdirAll(tc.Path(), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := tc.Ensure(context.Background(), false); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if manager.createCalls != 1 {
		t.Fatalf("partial toolchain not rebuilt")
	}
}

func TestEnsureCreateFailure(t *testing.T) {
	manager := &fakeManager{createErr: errors.New("solver blew up")}
	tc := newToolchain(t, manager)

	err := tc.Ensure(context.Background(), false)
	if !errors.Is(err, services.ErrToolchainCreate) {
		t.Fatalf("expected ErrToolchainCreate, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(tc.Path(), cache.CompleteMarker)); !os.IsNotExist(statErr) {
		t.Fatalf("marker written despite failure")
	}
}

func TestEnsureMissingResolver(t *testing.T) {
	manager := &fakeManager{skipBinary: true}
	tc := newToolchain(t, manager)

	err := tc.Ensure(context.Background(), false)
	if !errors.Is(err, services.ErrToolchainCreate) {
		t.Fatalf("expected ErrToolchainCreate for missing resolver, got %v", err)
	}
}

func TestRunDispatchesInsideEnvironment(t *testing.T) {
	manager := &fakeManager{}
	tc := newToolchain(t, manager)
	code, err := tc.Run(context.Background(), []string{"conda-lock", "--version"})
	if err != nil || code != 0 {
		t.Fatalf("run: code=%d err=%v", code, err)
	}
	if len(manager.runArgv) == 0 || manager.runArgv[0] != "conda-lock" {
		t.Fatalf("argv not forwarded: %v", manager.runArgv)
	}
}
