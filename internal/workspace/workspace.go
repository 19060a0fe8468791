package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is an ephemeral staging directory for one pipeline step. Files
// are assembled here and published by an atomic rename, so a crash mid-step
// leaves nothing visible under a final artifact name.
type Workspace struct {
	path string
}

// Acquire creates a uniquely named directory under root. The label is
// embedded in the directory name so leftover directories from killed
// processes can be attributed during cleanup.
func Acquire(root, label string) (*Workspace, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("workspace: staging root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create staging root: %w", err)
	}
	label = sanitizeLabel(label)
	path := filepath.Join(root, label+"-"+uuid.NewString())
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", path, err)
	}
	return &Workspace{path: path}, nil
}

// Path returns the workspace directory.
func (w *Workspace) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Join returns a path inside the workspace.
func (w *Workspace) Join(elem ...string) string {
	return filepath.Join(append([]string{w.Path()}, elem...)...)
}

// Release removes the workspace recursively. Safe to call more than once and
// on every exit path; callers defer it immediately after Acquire.
func (w *Workspace) Release() {
	if w == nil || w.path == "" {
		return
	}
	_ = os.RemoveAll(w.path)
	w.path = ""
}

func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "stage"
	}
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
