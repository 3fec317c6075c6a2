package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeEngine()
	if err := c.normalizeConversion(); err != nil {
		return err
	}
	c.normalizeURLs()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.FilesDir, err = expandPath(c.Paths.FilesDir); err != nil {
		return fmt.Errorf("paths.files_dir: %w", err)
	}
	c.Paths.CacheLoc = strings.Trim(filepath.ToSlash(strings.TrimSpace(c.Paths.CacheLoc)), "/")
	if c.Paths.CacheLoc == "" {
		c.Paths.CacheLoc = defaultCacheLoc
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = filepath.Join(c.Paths.FilesDir, filepath.FromSlash(c.Paths.CacheLoc))
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PIDFile) == "" {
		c.Paths.PIDFile = defaultPIDFile
	}
	if c.Paths.PIDFile, err = expandPath(c.Paths.PIDFile); err != nil {
		return fmt.Errorf("paths.pid_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	c.Catalog.Driver = strings.ToLower(strings.TrimSpace(c.Catalog.Driver))
	switch c.Catalog.Driver {
	case "", "sqlite", "sqlite3":
		c.Catalog.Driver = catalogDriverSQLite
	case "postgres", "postgresql", "pgx":
		c.Catalog.Driver = catalogDriverPostgres
	}
	c.Catalog.DSN = strings.TrimSpace(c.Catalog.DSN)
	if c.Catalog.DSN == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok && c.Catalog.Driver == catalogDriverPostgres {
			c.Catalog.DSN = strings.TrimSpace(value)
		}
	}
	if c.Catalog.Driver == catalogDriverSQLite {
		if c.Catalog.DSN == "" {
			c.Catalog.DSN = filepath.Join(c.Paths.LogDir, defaultSQLiteCatalogName)
		}
		var err error
		if c.Catalog.DSN, err = expandPath(c.Catalog.DSN); err != nil {
			return fmt.Errorf("catalog.dsn: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	c.Engine.ExtensionPackage = strings.TrimSpace(c.Engine.ExtensionPackage)
	if c.Engine.TimeoutSeconds < 0 {
		c.Engine.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeConversion() error {
	if c.Conversion.EntriesPerBatch <= 0 {
		c.Conversion.EntriesPerBatch = defaultEntriesPerBatch
	}
	if c.Conversion.DefaultMaxSourceMiB <= 0 {
		c.Conversion.DefaultMaxSourceMiB = defaultMaxSourceMiB
	}
	if c.Conversion.StaleAfterHours <= 0 {
		c.Conversion.StaleAfterHours = defaultStaleAfterHours
	}
	if len(c.Conversion.MaxSourceMiB) > 0 {
		normalized := make(map[string]int, len(c.Conversion.MaxSourceMiB))
		for category, mib := range c.Conversion.MaxSourceMiB {
			key := strings.ToLower(strings.TrimSpace(category))
			if key == "" {
				continue
			}
			normalized[key] = mib
		}
		c.Conversion.MaxSourceMiB = normalized
	}
	if strings.TrimSpace(c.Conversion.TypesFile) != "" {
		var err error
		if c.Conversion.TypesFile, err = expandPath(strings.TrimSpace(c.Conversion.TypesFile)); err != nil {
			return fmt.Errorf("conversion.types_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeURLs() {
	c.URLs.Site = strings.TrimSpace(c.URLs.Site)
	if c.URLs.Site == "" {
		c.URLs.Site = defaultSiteURL
	}
	if !strings.HasSuffix(c.URLs.Site, "/") {
		c.URLs.Site += "/"
	}
	c.URLs.BibRec = strings.TrimRight(strings.TrimSpace(c.URLs.BibRec), "/")
	if c.URLs.BibRec == "" {
		c.URLs.BibRec = defaultBibRecURL
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
