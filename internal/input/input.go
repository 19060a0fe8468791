package input

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lockstep/internal/lockfile"
	"lockstep/internal/services"
)

// Kind is the closed set of input kinds the pipeline accepts. Classification
// happens once, up front; every stage handler dispatches on the result.
type Kind int

const (
	KindUnknown Kind = iota
	// KindEnvironmentDescription is a high-level description resolved into
	// an explicit lock before materialization.
	KindEnvironmentDescription
	// KindLockableDescription is an intermediate lock-request description;
	// it resolves through the toolchain into the same lock output path.
	KindLockableDescription
	// KindExplicitLock is a fully pinned lock, materialized directly.
	KindExplicitLock
	// KindPackageRecipe is built into a binary package; the recipe stage is
	// leaf-only and never chains further.
	KindPackageRecipe
)

func (k Kind) String() string {
	switch k {
	case KindEnvironmentDescription:
		return "environment-description"
	case KindLockableDescription:
		return "lockable-description"
	case KindExplicitLock:
		return "explicit-lock"
	case KindPackageRecipe:
		return "package-recipe"
	default:
		return "unknown"
	}
}

// File is a classified input: its path, raw content, and kind.
type File struct {
	Path string
	Data []byte
	Kind Kind
}

// Read loads and classifies a spec file. Unreadable or unsupported files are
// input errors, reported before any side effects.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrInput, "classify", "read", path, err)
	}
	kind, err := Classify(path, data)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Data: data, Kind: kind}, nil
}

// Classify determines the input kind. Content wins over the file name: an
// explicit lock is recognized by its marker no matter what it is called.
// YAML kinds are disambiguated by suffix.
func Classify(path string, data []byte) (Kind, error) {
	if lockfile.IsExplicitData(data) {
		return KindExplicitLock, nil
	}

	base := strings.ToLower(filepath.Base(path))
	switch {
	case base == "meta.yaml" || strings.HasSuffix(base, ".recipe.yaml") || strings.HasSuffix(base, ".recipe.yml"):
		return KindPackageRecipe, nil
	case strings.HasSuffix(base, ".lock.yml") || strings.HasSuffix(base, ".lock.yaml"):
		return KindLockableDescription, nil
	case strings.HasSuffix(base, ".yml") || strings.HasSuffix(base, ".yaml"):
		return KindEnvironmentDescription, nil
	}
	return KindUnknown, services.Wrap(services.ErrInput, "classify", "kind",
		fmt.Sprintf("unsupported spec file %q", path), nil)
}
