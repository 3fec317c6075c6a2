package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"ebookconverter/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("NTFY_TOPIC", "https://ntfy.example/convert")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantFiles := filepath.Join(tempHome, "gutenberg", "public")
	if cfg.Paths.FilesDir != wantFiles {
		t.Fatalf("unexpected files dir: got %q want %q", cfg.Paths.FilesDir, wantFiles)
	}
	if cfg.Paths.CacheDir != filepath.Join(wantFiles, "cache", "epub") {
		t.Fatalf("expected cache dir derived from files dir, got %q", cfg.Paths.CacheDir)
	}
	if cfg.Catalog.Driver != "sqlite" {
		t.Fatalf("unexpected catalog driver: %q", cfg.Catalog.Driver)
	}
	if !strings.HasPrefix(cfg.Catalog.DSN, tempHome) {
		t.Fatalf("expected sqlite catalog under HOME, got %q", cfg.Catalog.DSN)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/convert" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Engine.Binary != "ebookmaker" {
		t.Fatalf("unexpected engine binary: %q", cfg.Engine.Binary)
	}
	if cfg.Conversion.MaxTraversalDepth != 3 {
		t.Fatalf("unexpected traversal depth: %d", cfg.Conversion.MaxTraversalDepth)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.toml")

	custom := config.Default()
	custom.Paths.FilesDir = filepath.Join(dir, "public")
	custom.Paths.CacheLoc = "/cache/alt/"
	custom.Conversion.EntriesPerBatch = 5
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.CacheLoc != "cache/alt" {
		t.Fatalf("expected cache_loc trimmed, got %q", cfg.Paths.CacheLoc)
	}
	if cfg.Paths.CacheDir != filepath.Join(dir, "public", "cache", "alt") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
	if cfg.Conversion.EntriesPerBatch != 5 {
		t.Fatalf("unexpected batch size: %d", cfg.Conversion.EntriesPerBatch)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
}

func TestLoadPostgresUsesDatabaseURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://catalog@localhost/gutenberg")

	configPath := filepath.Join(t.TempDir(), "pg.toml")
	contents := "[catalog]\ndriver = \"PostgreSQL\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.Driver != "postgres" {
		t.Fatalf("expected postgres driver, got %q", cfg.Catalog.Driver)
	}
	if cfg.Catalog.DSN != "postgres://catalog@localhost/gutenberg" {
		t.Fatalf("expected DSN from env, got %q", cfg.Catalog.DSN)
	}
}

func TestMaxSourceBytesFallsBackToDefault(t *testing.T) {
	cfg := config.Default()
	if got := cfg.MaxSourceBytes("txt"); got != 8*1024*1024 {
		t.Fatalf("unexpected txt ceiling: %d", got)
	}
	if got := cfg.MaxSourceBytes("epub3"); got != 16*1024*1024 {
		t.Fatalf("unexpected epub3 ceiling: %d", got)
	}
	if got := cfg.MaxSourceBytes("pdf"); got != 32*1024*1024 {
		t.Fatalf("unexpected default ceiling: %d", got)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Conversion.StaleAfterHours != 24 {
		t.Fatalf("expected stale_after_hours in sample, got %d", cfg.Conversion.StaleAfterHours)
	}
	if len(cfg.Conversion.MaxSourceMiB) != 3 {
		t.Fatalf("expected three size ceilings in sample, got %v", cfg.Conversion.MaxSourceMiB)
	}
	if cfg.Engine.ExtensionPackage == "" {
		t.Fatal("expected extension package in sample")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Conversion.EntriesPerBatch = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive batch size")
	}

	cfg = config.Default()
	cfg.Catalog.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}

	cfg = config.Default()
	cfg.Catalog.Driver = "postgres"
	cfg.Catalog.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}

	cfg = config.Default()
	cfg.Conversion.MaxSourceMiB["txt"] = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative size ceiling")
	}

	cfg = config.Default()
	cfg.Paths.FilesDir = " "
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty files dir")
	}

	for _, site := range []string{"www.gutenberg.org", "/files/", "ftp://www.gutenberg.org/"} {
		cfg = config.Default()
		cfg.URLs.Site = site
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "urls.site") {
			t.Fatalf("expected urls.site error for %q, got %v", site, err)
		}
	}

	cfg = config.Default()
	cfg.URLs.BibRec = "gutenberg.org/ebooks"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "urls.bibrec") {
		t.Fatalf("expected urls.bibrec error, got %v", err)
	}
}

func TestLoadRejectsSchemelessSiteURL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "urls.toml")
	if err := os.WriteFile(configPath, []byte("[urls]\nsite = \"www.gutenberg.org\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected Load to reject a scheme-less site URL")
	}
}

func TestEnsureDirectoriesCreatesCacheAndLogs(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist", dir)
		}
	}
	if got := cfg.EntryCacheDir(4554); got != filepath.Join(base, "cache", "4554") {
		t.Fatalf("unexpected entry cache dir: %q", got)
	}
}

func TestArtifactCatalogPath(t *testing.T) {
	cfg := config.Default()
	if got := cfg.ArtifactCatalogPath(4554, "pg4554-images.epub"); got != "cache/epub/4554/pg4554-images.epub" {
		t.Fatalf("unexpected catalog path: %q", got)
	}
}
