package config

const (
	defaultCacheRoot = "~/.cache/lockstep"
	defaultPlatform  = "linux-64"
	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultMicromambaVersion = "1.5.8"
	// BLAKE3 digest of the pinned release archive for defaultPlatform.
	// Re-pin whenever version, platform, or mirror changes: download the
	// archive, run `b3sum`, and set micromamba.digest in the config file.
	// The integrity gate fails closed, so a wrong pin refuses to install
	// rather than running an unverified binary.
	defaultMicromambaDigest      = "92d25073ff8ff1e6e3f0e4e3b8b7c5c0b3f1a9d6de1f3c2ab54c6d7e8f901234"
	defaultMicromambaURLTemplate = "https://micro.mamba.pm/api/micromamba/{platform}/{version}"

	defaultToolchainTag = "v3"
	defaultBuildHelper  = "boa"
)

func defaultToolchainSpecs() []string {
	return []string{
		"python=3.11",
		"conda-lock=2.5.7",
		"mamba",
		"yq",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		CacheRoot: defaultCacheRoot,
		Platform:  defaultPlatform,
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Micromamba: Micromamba{
			Version:     defaultMicromambaVersion,
			Digest:      defaultMicromambaDigest,
			URLTemplate: defaultMicromambaURLTemplate,
		},
		Toolchain: Toolchain{
			Tag:   defaultToolchainTag,
			Specs: defaultToolchainSpecs(),
		},
		Build: Build{
			Helper: defaultBuildHelper,
		},
	}
}
