package config

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Validate checks invariants the rest of the system depends on. It runs after
// normalize, so all fields are trimmed and expanded.
func (c *Config) Validate() error {
	if c.CacheRoot == "" {
		return fmt.Errorf("config: cache_root is required")
	}
	if c.Platform == "" {
		return fmt.Errorf("config: platform is required")
	}
	if c.Micromamba.Version == "" {
		return fmt.Errorf("config: micromamba.version is required")
	}
	if c.Micromamba.URLTemplate == "" {
		return fmt.Errorf("config: micromamba.url_template is required")
	}
	if raw, err := hex.DecodeString(c.Micromamba.Digest); err != nil || len(raw) != 32 {
		return fmt.Errorf("config: micromamba.digest must be 64 hex characters")
	}
	if c.Toolchain.Tag == "" {
		return fmt.Errorf("config: toolchain.tag is required")
	}
	if len(c.Toolchain.Specs) == 0 {
		return fmt.Errorf("config: toolchain.specs must not be empty")
	}
	switch c.Build.Helper {
	case "boa", "rattler-build":
	default:
		return fmt.Errorf("config: build.helper must be %q or %q, got %q", "boa", "rattler-build", c.Build.Helper)
	}
	if strings.Contains(c.Toolchain.Tag, "/") {
		return fmt.Errorf("config: toolchain.tag must not contain path separators")
	}
	return nil
}
