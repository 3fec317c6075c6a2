package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	return c.validateURLs()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.FilesDir) == "" {
		return errors.New("paths.files_dir must be set")
	}
	if strings.HasPrefix(c.Paths.CacheLoc, "..") {
		return errors.New("paths.cache_loc must be relative to paths.files_dir")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	switch c.Catalog.Driver {
	case catalogDriverSQLite:
		return nil
	case catalogDriverPostgres:
		if c.Catalog.DSN == "" {
			return errors.New("catalog.dsn is required for the postgres driver (or set DATABASE_URL)")
		}
		return nil
	default:
		return fmt.Errorf("catalog.driver: unsupported value %q", c.Catalog.Driver)
	}
}

func (c *Config) validateConversion() error {
	if err := ensurePositiveMap(map[string]int{
		"conversion.entries_per_batch":      c.Conversion.EntriesPerBatch,
		"conversion.max_traversal_depth":    c.Conversion.MaxTraversalDepth,
		"conversion.default_max_source_mib": c.Conversion.DefaultMaxSourceMiB,
		"conversion.stale_after_hours":      c.Conversion.StaleAfterHours,
	}); err != nil {
		return err
	}
	if c.Conversion.LegacyIDThreshold < 0 {
		return errors.New("conversion.legacy_id_threshold must be >= 0")
	}
	for category, mib := range c.Conversion.MaxSourceMiB {
		if mib <= 0 {
			return fmt.Errorf("conversion.max_source_mib.%s must be positive", category)
		}
	}
	return nil
}

// validateURLs requires absolute http(s) URLs; job sources are built from
// them and the engine rejects relative ones.
func (c *Config) validateURLs() error {
	for key, raw := range map[string]string{
		"urls.site":   c.URLs.Site,
		"urls.bibrec": c.URLs.BibRec,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
