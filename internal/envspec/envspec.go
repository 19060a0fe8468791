package envspec

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Description models the human-authored environment description. Only the
// fields lockstep itself consumes are typed; the resolver reads the raw file,
// so unknown keys pass through untouched.
type Description struct {
	Name         string   `yaml:"name"`
	Channels     []string `yaml:"channels"`
	Dependencies []any    `yaml:"dependencies"`

	// ExcludePip lists pip package names the lock post-filter removes from
	// resolver output. The resolver does not deduplicate pip entries against
	// packages already satisfied by the primary manager; naive inclusion
	// causes install conflicts.
	ExcludePip []string `yaml:"exclude-pip"`
}

// Parse decodes a description document.
func Parse(data []byte) (*Description, error) {
	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("envspec: parse description: %w", err)
	}
	cleaned := make([]string, 0, len(desc.ExcludePip))
	for _, name := range desc.ExcludePip {
		if name = strings.TrimSpace(name); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	desc.ExcludePip = cleaned
	return &desc, nil
}

// EnvName returns the environment's logical name: the description's name
// field when present, otherwise the file stem.
func (d *Description) EnvName(path string) string {
	if d != nil {
		if name := strings.TrimSpace(d.Name); name != "" {
			return name
		}
	}
	base := filepath.Base(path)
	for _, ext := range []string{".yml", ".yaml", ".lock"} {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "env"
	}
	return base
}
