package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout of the public file tree and the
// converter's own working files.
type Paths struct {
	FilesDir string `toml:"files_dir"`
	CacheLoc string `toml:"cache_loc"`
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
	PIDFile  string `toml:"pid_file"`
}

// Catalog selects the catalog store backend.
type Catalog struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Engine describes how the external conversion engine is invoked.
type Engine struct {
	Binary           string `toml:"binary"`
	ExtensionPackage string `toml:"extension_package"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Conversion contains the candidate selection and verification policy.
type Conversion struct {
	EntriesPerBatch     int            `toml:"entries_per_batch"`
	LegacyIDThreshold   int            `toml:"legacy_id_threshold"`
	MaxTraversalDepth   int            `toml:"max_traversal_depth"`
	DefaultMaxSourceMiB int            `toml:"default_max_source_mib"`
	MaxSourceMiB        map[string]int `toml:"max_source_mib"`
	StaleAfterHours     int            `toml:"stale_after_hours"`
	TypesFile           string         `toml:"types_file"`
}

// URLs contains the public addresses stamped into job descriptors.
type URLs struct {
	Site   string `toml:"site"`
	BibRec string `toml:"bibrec"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for ebookconverter.
//
// Configuration sections by subsystem:
//   - Paths: public file tree, output cache, logs and pid file
//   - Catalog: catalog store backend (sqlite or postgres)
//   - Engine: external conversion engine invocation
//   - Conversion: batching, traversal limits and source size ceilings
//   - URLs: public addresses written into job descriptors
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Engine        Engine        `toml:"engine"`
	Conversion    Conversion    `toml:"conversion"`
	URLs          URLs          `toml:"urls"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ebookconverter/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	projectPath, err := filepath.Abs("ebookconverter.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, systemConfigPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the converter writes to.
// FilesDir is never created: it is the public archive and must already exist
// for any conversion to make sense.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EntryCacheDir returns the output directory for one catalog entry.
func (c *Config) EntryCacheDir(entryID int) string {
	return filepath.Join(c.Paths.CacheDir, fmt.Sprintf("%d", entryID))
}

// EntryCacheLoc returns the catalog-relative location of one entry's outputs.
func (c *Config) EntryCacheLoc(entryID int) string {
	return filepath.Join(c.Paths.CacheLoc, fmt.Sprintf("%d", entryID))
}

// MaxSourceBytes returns the source size ceiling for a type category.
func (c *Config) MaxSourceBytes(category string) int64 {
	mib, ok := c.Conversion.MaxSourceMiB[category]
	if !ok || mib <= 0 {
		mib = c.Conversion.DefaultMaxSourceMiB
	}
	return int64(mib) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// ArtifactCatalogPath returns the catalog path recorded for an entry's artifact.
func (c *Config) ArtifactCatalogPath(entryID int, filename string) string {
	return path.Join(filepath.ToSlash(c.Paths.CacheLoc), strconv.Itoa(entryID), filename)
}
