package pipinstall

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"lockstep/internal/services"
)

type fakePrefixRunner struct {
	prefix string
	label  string
	argv   []string
	code   int
	err    error
}

func (f *fakePrefixRunner) RunIn(_ context.Context, prefix, label string, argv []string) (int, error) {
	f.prefix, f.label, f.argv = prefix, label, argv
	return f.code, f.err
}

func TestInstallArgs(t *testing.T) {
	runner := &fakePrefixRunner{}
	client, err := New(runner)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := client.Install(context.Background(), "/envs/a-1", "/tmp/reqs.txt"); err != nil {
		t.Fatalf("install: %v", err)
	}
	want := []string{"python", "-m", "pip", "install", "--no-deps", "--no-input", "--requirement", "/tmp/reqs.txt"}
	if !reflect.DeepEqual(runner.argv, want) {
		t.Fatalf("unexpected argv %v", runner.argv)
	}
	if runner.prefix != "/envs/a-1" {
		t.Fatalf("unexpected prefix %q", runner.prefix)
	}
}

func TestInstallNonZeroExit(t *testing.T) {
	client, _ := New(&fakePrefixRunner{code: 1})
	err := client.Install(context.Background(), "/p", "/r")
	if !errors.Is(err, services.ErrMaterialize) {
		t.Fatalf("expected ErrMaterialize, got %v", err)
	}
}

func TestNewRequiresRunner(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil runner")
	}
}
