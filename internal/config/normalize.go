package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// normalize expands paths, applies environment overrides, and trims string
// fields so downstream code never sees stray whitespace.
func (c *Config) normalize() error {
	if override := strings.TrimSpace(os.Getenv(EnvCacheRoot)); override != "" {
		c.CacheRoot = override
	}

	root, err := expandPath(strings.TrimSpace(c.CacheRoot))
	if err != nil {
		return err
	}
	c.CacheRoot = root

	c.Platform = strings.TrimSpace(c.Platform)
	c.Logging.Format = strings.TrimSpace(c.Logging.Format)
	c.Logging.Level = strings.TrimSpace(c.Logging.Level)
	c.Micromamba.Version = strings.TrimSpace(c.Micromamba.Version)
	c.Micromamba.Digest = strings.ToLower(strings.TrimSpace(c.Micromamba.Digest))
	c.Micromamba.URLTemplate = strings.TrimSpace(c.Micromamba.URLTemplate)
	c.Toolchain.Tag = strings.TrimSpace(c.Toolchain.Tag)
	c.Build.Helper = strings.TrimSpace(c.Build.Helper)

	specs := make([]string, 0, len(c.Toolchain.Specs))
	for _, spec := range c.Toolchain.Specs {
		if spec = strings.TrimSpace(spec); spec != "" {
			specs = append(specs, spec)
		}
	}
	c.Toolchain.Specs = specs

	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if pathValue == "~" || strings.HasPrefix(pathValue, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			return home, nil
		}
		return filepath.Join(home, pathValue[2:]), nil
	}
	return filepath.Abs(pathValue)
}
