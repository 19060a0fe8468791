package mamba

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type fakeExecutor struct {
	runCalls    [][]string
	outputCalls [][]string
	runCode     int
	output      string
	outputErr   error
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, _ []string) (int, error) {
	f.runCalls = append(f.runCalls, append([]string{binary}, args...))
	return f.runCode, nil
}

func (f *fakeExecutor) Output(_ context.Context, binary string, args []string, _ []string) (string, error) {
	f.outputCalls = append(f.outputCalls, append([]string{binary}, args...))
	return f.output, f.outputErr
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty binary")
	}
}

func TestVersionTrims(t *testing.T) {
	exec := &fakeExecutor{output: "1.5.8\n"}
	client, err := New("micromamba", WithExecutor(exec))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	version, err := client.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != "1.5.8" {
		t.Fatalf("unexpected version %q", version)
	}
	want := []string{"micromamba", "--version"}
	if !reflect.DeepEqual(exec.outputCalls[0], want) {
		t.Fatalf("unexpected argv %v", exec.outputCalls[0])
	}
}

func TestCreateFromLockArgs(t *testing.T) {
	exec := &fakeExecutor{}
	client, _ := New("micromamba", WithExecutor(exec))
	if err := client.CreateFromLock(context.Background(), "/cache/envs/a-1", "/cache/locks/a.lock"); err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"micromamba", "create", "--yes", "--prefix", "/cache/envs/a-1", "--file", "/cache/locks/a.lock"}
	if !reflect.DeepEqual(exec.outputCalls[0], want) {
		t.Fatalf("unexpected argv %v", exec.outputCalls[0])
	}
}

func TestCreateFromLockWrapsFailure(t *testing.T) {
	exec := &fakeExecutor{output: "boom", outputErr: errors.New("exit status 1")}
	client, _ := New("micromamba", WithExecutor(exec))
	err := client.CreateFromLock(context.Background(), "/p", "/l")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("tool output not surfaced: %v", err)
	}
}

func TestCreateFromSpecsArgs(t *testing.T) {
	exec := &fakeExecutor{}
	client, _ := New("micromamba", WithExecutor(exec))
	err := client.CreateFromSpecs(context.Background(), "/tc", []string{"conda-forge"}, []string{"conda-lock=2.5.7", "yq"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []string{"micromamba", "create", "--yes", "--prefix", "/tc", "--channel", "conda-forge", "conda-lock=2.5.7", "yq"}
	if !reflect.DeepEqual(exec.outputCalls[0], want) {
		t.Fatalf("unexpected argv %v", exec.outputCalls[0])
	}
}

func TestRunInPropagatesExitCode(t *testing.T) {
	exec := &fakeExecutor{runCode: 42}
	client, _ := New("micromamba", WithExecutor(exec))
	code, err := client.RunIn(context.Background(), "/envs/a-1", "lockstep-run", []string{"python", "-c", "1/0"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 42 {
		t.Fatalf("exit code not propagated: %d", code)
	}
	argv := exec.runCalls[0]
	want := []string{"micromamba", "run", "--prefix", "/envs/a-1", "--label", "lockstep-run", "python", "-c", "1/0"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("unexpected argv %v", argv)
	}
}

func TestRunInRequiresArgv(t *testing.T) {
	client, _ := New("micromamba", WithExecutor(&fakeExecutor{}))
	if _, err := client.RunIn(context.Background(), "/p", "", nil); err == nil {
		t.Fatalf("expected error for empty command vector")
	}
}
