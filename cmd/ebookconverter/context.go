package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/logging"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/services"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	registryOnce sync.Once
	registry     *outputtype.Registry
	registryErr  error
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
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "load", resolved, err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "config", "ensure directories", "", err)
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// ensureRegistry loads the output type registry named by the config, or the
// embedded one.
func (c *commandContext) ensureRegistry() (*outputtype.Registry, error) {
	c.registryOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.registryErr = err
			return
		}
		reg, err := outputtype.Load(cfg.Conversion.TypesFile)
		if err != nil {
			c.registryErr = services.Wrap(services.ErrConfiguration, "config", "load output types", "", err)
			return
		}
		c.registry = reg
	})
	return c.registry, c.registryErr
}

func (c *commandContext) openCatalog(ctx context.Context) (catalog.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := catalog.Open(ctx, cfg)
	if err != nil {
		return nil, services.Wrap(services.ErrCatalog, "catalog", "open", cfg.Catalog.Driver, err)
	}
	return store, nil
}

// logger builds a stderr logger. verbosity raises the configured level to
// debug; runID additionally tees a JSON run log into the log directory.
func (c *commandContext) logger(verbosity int, runID string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if verbosity > 0 {
		clone := *cfg
		clone.Logging.Level = "debug"
		cfg = &clone
	}
	return logging.NewFromConfig(cfg, runID)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
