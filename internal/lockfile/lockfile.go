package lockfile

import (
	"bufio"
	"bytes"
	"strings"

	"lockstep/internal/contenthash"
)

const (
	// ExplicitMarker identifies a fully pinned lock: every reference below it
	// is an exact URL, re-creatable without dependency resolution.
	ExplicitMarker = "@EXPLICIT"
	// ProvenanceKey prefixes the single comment line carrying the content
	// hash of the lock's governing input.
	ProvenanceKey = "# lockstep-input-hash:"
	// PipPrefix designates entries for the secondary installer; the primary
	// manager skips them.
	PipPrefix = "# pip "
)

// Lock holds an explicit lock as its ordered lines. Order is significant:
// the package manager installs in file order.
type Lock struct {
	Lines []string
}

// Parse splits lock content into lines, dropping a single trailing newline.
func Parse(data []byte) *Lock {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return &Lock{Lines: lines}
}

// Bytes renders the lock with one trailing newline.
func (l *Lock) Bytes() []byte {
	if l == nil || len(l.Lines) == 0 {
		return nil
	}
	return []byte(strings.Join(l.Lines, "\n") + "\n")
}

// IsExplicit reports whether the lock carries the explicit marker.
func (l *Lock) IsExplicit() bool {
	if l == nil {
		return false
	}
	for _, line := range l.Lines {
		if strings.TrimSpace(line) == ExplicitMarker {
			return true
		}
	}
	return false
}

// IsExplicitData reports whether raw content is an explicit lock, used for
// input classification without a full parse.
func IsExplicitData(data []byte) bool {
	return Parse(data).IsExplicit()
}

// Provenance returns the governing-input hash embedded in the lock. The
// second return is false when no well-formed provenance line exists, which
// classifies the artifact as foreign.
func (l *Lock) Provenance() (contenthash.Hash, bool) {
	if l == nil {
		return contenthash.Hash{}, false
	}
	for _, line := range l.Lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, ProvenanceKey) {
			continue
		}
		token := strings.TrimSpace(strings.TrimPrefix(trimmed, ProvenanceKey))
		hash, err := contenthash.Parse(token)
		if err != nil {
			return contenthash.Hash{}, false
		}
		return hash, true
	}
	return contenthash.Hash{}, false
}

// PipRequirements extracts the secondary-installer entries in file order.
func (l *Lock) PipRequirements() []string {
	if l == nil {
		return nil
	}
	var reqs []string
	for _, line := range l.Lines {
		if strings.HasPrefix(line, PipPrefix) {
			if req := strings.TrimSpace(strings.TrimPrefix(line, PipPrefix)); req != "" {
				reqs = append(reqs, req)
			}
		}
	}
	return reqs
}

// WithProvenance returns lines with any existing provenance line removed and
// a single fresh one appended.
func WithProvenance(lines []string, hash contenthash.Hash) []string {
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ProvenanceKey) {
			continue
		}
		out = append(out, line)
	}
	return append(out, ProvenanceKey+" "+hash.Hex())
}

// FilterExcluded drops secondary-installer entries whose package name matches
// an excluded name. Matching is case-insensitive on the requirement name
// only; primary-manager lines always pass through.
func FilterExcluded(lines []string, excludeNames []string) []string {
	if len(excludeNames) == 0 {
		return lines
	}
	excluded := make(map[string]struct{}, len(excludeNames))
	for _, name := range excludeNames {
		if name = normalizeName(name); name != "" {
			excluded[name] = struct{}{}
		}
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, PipPrefix) {
			req := strings.TrimSpace(strings.TrimPrefix(line, PipPrefix))
			if _, drop := excluded[normalizeName(requirementName(req))]; drop {
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

// requirementName isolates the package name from a pip requirement string:
// everything before the first version operator, extras bracket, or space.
func requirementName(req string) string {
	for i, r := range req {
		switch r {
		case '=', '<', '>', '!', '~', '[', ' ', ';', '@':
			return req[:i]
		}
	}
	return req
}

func normalizeName(name string) string {
	// PEP 503: runs of -, _, . compare equal.
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	return name
}
