package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/converter"
	"ebookconverter/internal/fileutil"
	"ebookconverter/internal/outputtype"
	"ebookconverter/internal/services"
	"ebookconverter/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

// seedEntry4554 stores one html source for entry 4554 in the catalog and on disk.
func seedEntry4554(t *testing.T, cfg *config.Config) {
	t.Helper()
	store := testsupport.MustOpenCatalog(t, cfg)
	modified := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	testsupport.SeedEntry(t, store, 4554, catalog.File{
		Path:     "4/5/5/4554/4554-h/4554-h.htm",
		FileType: "html",
		Encoding: "iso-8859-1",
		Size:     2048,
		Modified: modified,
	})
	testsupport.WriteFileAt(t, filepath.Join(cfg.Paths.FilesDir, "files", "4554", "4554-h", "4554-h.htm"), modified)
}

func TestTypesCommandListsRegistry(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"types"}, env.configPath)
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	for _, want := range []string{"epub.images", "pg{id}-images.epub", "(generic)", "epub.dp/*"} {
		if !strings.Contains(out, want) {
			t.Fatalf("types output missing %q: %q", want, out)
		}
	}
	if strings.Index(out, "epub.noimages") > strings.Index(out, "kindle.images") {
		t.Fatalf("expected build order in output: %q", out)
	}
}

func TestTypesExpandCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := runCLI(t, []string{"types", "expand", "kindle,epub"}, env.configPath)
	if err != nil {
		t.Fatalf("types expand: %v", err)
	}
	if out != "epub.noimages\nepub.images\nkindle.images\n" {
		t.Fatalf("unexpected expansion: %q", out)
	}

	_, err = runCLI(t, []string{"types", "expand", "epub.bogus"}, env.configPath)
	if !errors.Is(err, outputtype.ErrUnknownType) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	target := filepath.Join(home, "conf", "ebookconverter.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "embedded") {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestConfigLoadErrorIsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	if err := os.WriteFile(path, []byte("[paths\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := runCLI(t, []string{"types"}, path)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d", exitCode(err))
	}
}

func TestCandidatesCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	seedEntry4554(t, env.cfg)

	out, err := runCLI(t, []string{"candidates", "4554"}, env.configPath)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if !strings.Contains(out, "html/iso-8859-1") || !strings.Contains(out, "files/4554/4554-h/4554-h.htm") {
		t.Fatalf("unexpected candidates output: %q", out)
	}
	if !strings.Contains(out, "2,048") {
		t.Fatalf("expected formatted size in output: %q", out)
	}

	out, err = runCLI(t, []string{"candidates", "77"}, env.configPath)
	if err != nil {
		t.Fatalf("candidates for unknown entry: %v", err)
	}
	if !strings.Contains(out, "No candidates for entry 77") {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := runCLI(t, []string{"candidates", "abc"}, env.configPath); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestConvertDryRunPrintsPlan(t *testing.T) {
	env := setupCLITestEnv(t)
	seedEntry4554(t, env.cfg)

	out, err := runCLI(t, []string{"convert", "--make", "epub.images", "--range", "4554", "-n", "--skip-preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("convert --dry-run: %v", err)
	}
	sourcePath := filepath.Join(env.cfg.Paths.FilesDir, "files", "4554", "4554-h", "4554-h.htm")
	for _, want := range []string{
		"4554", "epub.images", "queued", "files/4554/4554-h/4554-h.htm",
		filepath.Join(env.cfg.Paths.CacheDir, "4554", "pg4554-images.epub"),
		fileutil.FileURL(sourcePath),
		fileutil.FileURL(filepath.Dir(sourcePath)) + "/*",
		"Processed 1 of 1 entries, 1 jobs",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("dry run output missing %q: %q", want, out)
		}
	}
	lock, err := converter.AcquireLock(env.cfg.Paths.PIDFile)
	if err != nil {
		t.Fatalf("expected lock released after the run: %v", err)
	}
	lock.Release()
}

func TestConvertRefusesWhenLocked(t *testing.T) {
	env := setupCLITestEnv(t)
	lock, err := converter.AcquireLock(env.cfg.Paths.PIDFile)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	_, err = runCLI(t, []string{"convert", "--make", "epub.images", "--range", "1", "--skip-preflight"}, env.configPath)
	if !errors.Is(err, converter.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Fatalf("expected exit code 2, got %d", exitCode(err))
	}
}

func TestConvertRejectsUnknownType(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, []string{"convert", "--make", "epub.bogus", "--range", "1", "--skip-preflight", "-n"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPreflightCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())
	if err := os.MkdirAll(env.cfg.Paths.FilesDir, 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, []string{"preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("preflight: %v\n%s", err, out)
	}
	if strings.Contains(out, "[ERROR]") || !strings.Contains(out, "ebookmaker:") {
		t.Fatalf("unexpected preflight output: %q", out)
	}
}

func TestTestNotifyCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/ebooks"))
	out, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Test notification sent") || hits.Load() != 1 {
		t.Fatalf("unexpected result: %q (hits=%d)", out, hits.Load())
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("NTFY_TOPIC", "")
	out, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLogsCommandShowsLatestRun(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	older := filepath.Join(env.cfg.Paths.LogDir, "ebookconverter-20261014T230000Z-1a2b3c4d.log")
	newer := filepath.Join(env.cfg.Paths.LogDir, "ebookconverter-20261015T080000Z-9f8e7d6c.log")
	if err := os.WriteFile(older, []byte("old run\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output: %q", out)
	}

	out, err = runCLI(t, []string{"logs", "--run", "20261014"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --run: %v", err)
	}
	if out != "old run\n" {
		t.Fatalf("unexpected logs output: %q", out)
	}

	out, err = runCLI(t, []string{"logs", "--list"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --list: %v", err)
	}
	if !strings.Contains(out, "20261015T080000Z-9f8e7d6c") || !strings.Contains(out, "20261014T230000Z-1a2b3c4d") {
		t.Fatalf("unexpected list output: %q", out)
	}
}
