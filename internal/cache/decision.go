package cache

import (
	"errors"
	"os"
	"path/filepath"

	"lockstep/internal/contenthash"
	"lockstep/internal/lockfile"
)

// Decision is the outcome of a cache-validity check. The check reads only
// the candidate's embedded provenance; it never executes an external tool.
type Decision int

const (
	// Valid: the candidate's embedded hash equals the governing input hash.
	// Skip regeneration.
	Valid Decision = iota
	// Stale: the candidate exists but was produced from different input.
	// Regenerate, overwriting it.
	Stale
	// Missing: no candidate exists. Regenerate.
	Missing
	// Foreign: the candidate has content but no provenance marker, so it was
	// not produced by this system. Regenerated like Stale, logged distinctly,
	// never trusted.
	Foreign
)

func (d Decision) String() string {
	switch d {
	case Valid:
		return "valid"
	case Stale:
		return "stale"
	case Missing:
		return "missing"
	case Foreign:
		return "foreign"
	default:
		return "unknown"
	}
}

// Rebuild reports whether the decision requires regeneration.
func (d Decision) Rebuild() bool {
	return d != Valid
}

// CompleteMarker is the success marker file written into an environment root
// after creation fully succeeds. Its absence marks a partial or interrupted
// creation.
const CompleteMarker = ".lockstep-complete"

// ForLock decides whether a candidate lock file is still governed by
// inputHash.
func ForLock(inputHash contenthash.Hash, candidatePath string, forceRebuild bool) (Decision, error) {
	data, err := os.ReadFile(candidatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Missing, nil
		}
		return Missing, err
	}
	if len(data) == 0 {
		return Missing, nil
	}
	if forceRebuild {
		return Stale, nil
	}
	embedded, ok := lockfile.Parse(data).Provenance()
	if !ok {
		return Foreign, nil
	}
	if embedded != inputHash {
		return Stale, nil
	}
	return Valid, nil
}

// ForEnvironment decides whether a candidate environment directory is a
// fully created product of the governing lock. The directory name already
// encodes the lock hash, so validity reduces to the success marker; a
// directory without one is a partial creation and is rebuilt from scratch.
func ForEnvironment(envDir string, forceRebuild bool) (Decision, error) {
	info, err := os.Stat(envDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Missing, nil
		}
		return Missing, err
	}
	if !info.IsDir() {
		return Foreign, nil
	}
	if forceRebuild {
		return Stale, nil
	}
	if _, err := os.Stat(filepath.Join(envDir, CompleteMarker)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Stale, nil
		}
		return Stale, err
	}
	return Valid, nil
}

// EnvironmentDirName disambiguates environments by lock content: two locks
// for the same logical name never collide on disk.
func EnvironmentDirName(name string, lockHash contenthash.Hash) string {
	return name + "-" + lockHash.Short()
}

// WriteCompleteMarker records successful creation. Written only after every
// creation step has finished.
func WriteCompleteMarker(envDir string) error {
	return os.WriteFile(filepath.Join(envDir, CompleteMarker), []byte("ok\n"), 0o644)
}
