package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"lockstep/internal/config"
	"lockstep/internal/contenthash"
	"lockstep/internal/fetch"
	"lockstep/internal/logging"
	"lockstep/internal/materialize"
	"lockstep/internal/pipeline"
	"lockstep/internal/services/builder"
	"lockstep/internal/services/condalock"
	"lockstep/internal/services/mamba"
	"lockstep/internal/services/pipinstall"
	"lockstep/internal/toolchain"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = newLogger(cfg)
	})
	return c.logger, c.loggerErr
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// deps bundles the wired pipeline for one invocation.
type deps struct {
	runner       *pipeline.Runner
	materializer *materialize.Materializer
	toolchain    *toolchain.Toolchain
}

// bootstrap fetches the verified package-manager binary and wires every stage
// client around it. The toolchain environment itself stays lazy; only stages
// that need the resolver or build helper trigger its creation.
func (c *commandContext) bootstrap(ctx context.Context, forceInit bool, helperOverride string) (*deps, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	digest, err := contenthash.Parse(cfg.Micromamba.Digest)
	if err != nil {
		return nil, fmt.Errorf("micromamba digest: %w", err)
	}
	pin := fetch.Pin{
		Version:    cfg.Micromamba.Version,
		Digest:     digest,
		URL:        fetch.RenderURL(cfg.Micromamba.URLTemplate, cfg.Platform, cfg.Micromamba.Version),
		BinaryName: "micromamba",
	}
	fetcher := fetch.New(cfg.BinDir(), cfg.TmpDir(), logger)
	binaryPath, err := fetcher.Ensure(ctx, pin, forceInit)
	if err != nil {
		return nil, err
	}

	manager, err := mamba.New(binaryPath)
	if err != nil {
		return nil, err
	}
	tc, err := toolchain.New(toolchain.Params{
		Dir:     cfg.ToolchainDir(),
		Specs:   cfg.Toolchain.Specs,
		Manager: manager,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}
	resolver, err := condalock.New(tc, cfg.Platform)
	if err != nil {
		return nil, err
	}
	helper := cfg.Build.Helper
	if override := strings.TrimSpace(helperOverride); override != "" {
		helper = override
	}
	buildClient, err := builder.New(tc, helper)
	if err != nil {
		return nil, err
	}
	pip, err := pipinstall.New(manager)
	if err != nil {
		return nil, err
	}
	materializer, err := materialize.New(cfg.TmpDir(), manager, pip, logger)
	if err != nil {
		return nil, err
	}
	runner, err := pipeline.New(pipeline.Params{
		EnvsRoot:  cfg.EnvsDir(),
		TmpRoot:   cfg.TmpDir(),
		FlocksDir: cfg.FlocksDir(),
		Toolchain: tc,
		Resolver:  resolver,
		Envs:      materializer,
		Builder:   buildClient,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &deps{runner: runner, materializer: materializer, toolchain: tc}, nil
}
