package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvCacheRoot overrides the configured cache root when set.
const EnvCacheRoot = "LOCKSTEP_CACHE_DIR"

// EnvNoBanner suppresses decorative banners from the tools lockstep runs.
const EnvNoBanner = "LOCKSTEP_NO_BANNER"

// EnvConfig selects the configuration file when no --config flag is given.
const EnvConfig = "LOCKSTEP_CONFIG"

// Micromamba pins the package-manager runtime binary lockstep bootstraps.
type Micromamba struct {
	Version     string `toml:"version"`
	Digest      string `toml:"digest"`
	URLTemplate string `toml:"url_template"`
}

// Toolchain describes the helper environment hosting the resolver and
// auxiliary tools. Tag versions the whole environment: bumping it invalidates
// the cached toolchain wholesale.
type Toolchain struct {
	Tag   string   `toml:"tag"`
	Specs []string `toml:"specs"`
}

// Build selects the recipe build helper installed into the toolchain.
type Build struct {
	Helper string `toml:"helper"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration object.
type Config struct {
	CacheRoot  string     `toml:"cache_root"`
	Platform   string     `toml:"platform"`
	Logging    Logging    `toml:"logging"`
	Micromamba Micromamba `toml:"micromamba"`
	Toolchain  Toolchain  `toml:"toolchain"`
	Build      Build      `toml:"build"`
}

// Sample returns the embedded sample configuration file contents.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves ~ prefixes and makes the path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lockstep/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized, and the cache-root
// environment override applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lockstep.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache-root directory tree.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.CacheRoot, c.BinDir(), c.EnvsDir(), c.TmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BinDir returns the directory holding fetched helper binaries.
func (c *Config) BinDir() string {
	return filepath.Join(c.CacheRoot, "bin")
}

// EnvsDir returns the directory holding materialized environments.
func (c *Config) EnvsDir() string {
	return filepath.Join(c.CacheRoot, "envs")
}

// TmpDir returns the scoped-workspace staging root.
func (c *Config) TmpDir() string {
	return filepath.Join(c.CacheRoot, "tmp")
}

// FlocksDir returns the directory holding per-artifact advisory lock files.
func (c *Config) FlocksDir() string {
	return filepath.Join(c.CacheRoot, "flocks")
}

// ToolchainDir returns the versioned toolchain environment path.
func (c *Config) ToolchainDir() string {
	return filepath.Join(c.CacheRoot, "toolchain", c.Toolchain.Tag)
}

// MicromambaPath returns the version-qualified cache path of the runtime
// binary.
func (c *Config) MicromambaPath() string {
	return filepath.Join(c.BinDir(), "micromamba-"+c.Micromamba.Version)
}
