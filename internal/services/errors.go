package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIntegrity marks a digest mismatch on a fetched artifact. Never
	// retried; the artifact is discarded before it is executed or cached.
	ErrIntegrity = errors.New("integrity error")
	// ErrCorruptArchive marks a fetched archive missing its expected payload.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrVersionMismatch marks a fetched binary whose self-reported version
	// disagrees with the pinned one.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrToolchainCreate marks a failed toolchain environment build.
	ErrToolchainCreate = errors.New("toolchain create error")
	// ErrResolver marks a non-zero exit from the dependency resolver.
	ErrResolver = errors.New("resolver error")
	// ErrMaterialize marks a failed environment creation or secondary
	// install. The partial environment is left without a success marker so
	// the next invocation rebuilds it from scratch.
	ErrMaterialize = errors.New("materialize error")
	// ErrInput marks an unreadable or unsupported input file or flag.
	// Reported before any side effects.
	ErrInput = errors.New("input error")
	// ErrExternalTool marks any other external tool failure.
	ErrExternalTool = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Usage reports whether err is a usage-level input error, so callers can
// print help rather than a chain of wrapped causes.
func Usage(err error) bool {
	return errors.Is(err, ErrInput)
}

// ExitCodeError carries the exit code of a command executed inside a
// materialized environment so main can propagate it verbatim.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// ExitCode extracts a propagated child exit code from err. The second return
// is false when err carries no exit code.
func ExitCode(err error) (int, bool) {
	var exit *ExitCodeError
	if errors.As(err, &exit) {
		return exit.Code, true
	}
	return 0, false
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
