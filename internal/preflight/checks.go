package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"ebookconverter/internal/catalog"
	"ebookconverter/internal/config"
	"ebookconverter/internal/deps"
)

// CheckEngine verifies the ebookmaker binary resolves on PATH.
func CheckEngine(cfg *config.Config) Result {
	const name = "ebookmaker"

	statuses := deps.CheckBinaries([]deps.Requirement{{
		Name:        name,
		Command:     cfg.Engine.Binary,
		Description: "Required to build output formats",
	}})
	if missing := deps.Missing(statuses); len(missing) > 0 {
		return Result{Name: name, Detail: missing[0].Detail}
	}
	return Result{Name: name, Passed: true, Detail: statuses[0].Path}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckSourceDirectory verifies that the directory exists and is readable.
func CheckSourceDirectory(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
}

func checkDirectory(name, path string, mode uint32, ok string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, ok)}
}

// CheckCatalog opens the configured catalog and runs a cheap query.
func CheckCatalog(ctx context.Context, cfg *config.Config) Result {
	const name = "Catalog"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := catalog.Open(checkCtx, cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s open failed (%v)", cfg.Catalog.Driver, err)}
	}
	defer store.Close()

	last, err := store.LastEntryID(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s query failed (%v)", cfg.Catalog.Driver, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable (last entry %d)", cfg.Catalog.Driver, last)}
}

// CheckNtfy verifies the ntfy server behind topic answers its health endpoint.
// Notification failures never block a run, so the result is optional.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("invalid topic url %q", topic)}
	}
	health := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/v1/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Optional: true, Passed: true, Detail: "Reachable"}
}
