package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"pastiche/internal/config"
	"pastiche/internal/filters"
	"pastiche/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckReadableDirectory verifies that the directory exists and is readable.
// With optional set, a missing directory is reported but does not fail.
func CheckReadableDirectory(name, path string, optional bool) Result {
	res := checkDirectory(name, path, unix.R_OK|unix.X_OK, "read ok")
	res.Optional = optional
	return res
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
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
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckFilters loads the registry the way the daemon does and reports the
// filter names.
func CheckFilters(cfg *config.Config) Result {
	const name = "Filters"
	registry, err := filters.Load(cfg.Paths.FiltersDir, filters.FromConfig(cfg.Filters))
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if registry.Len() == 0 {
		return Result{Name: name, Detail: "no filters found"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d loaded (%s)", registry.Len(), strings.Join(registry.Names(), ", "))}
}

// CheckDatabase opens the index and verifies its schema. A database that does
// not exist yet passes; the daemon creates it on start.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "State database"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first start)", path)}
	}
	st, err := store.Open(path)
	if err != nil {
		if errors.Is(err, store.ErrSchemaMismatch) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: schema mismatch, remove the file to rebuild)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: ping: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (schema ok)", path)}
}

// CheckDaemon verifies that a daemon answers /ping at bind. It uses a
// 5-second timeout and a single attempt.
func CheckDaemon(ctx context.Context, bind string) Result {
	const name = "Daemon"

	bind = strings.TrimSpace(bind)
	if bind == "" {
		return Result{Name: name, Detail: "HTTP adapter disabled", Optional: true}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, BaseURL(bind)+"/ping", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%v)", err), Optional: true}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeDialError(err), Optional: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("ping failed (%d)", resp.StatusCode), Optional: true}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable at %s", bind), Optional: true}
}

// BaseURL turns a listen address into a client URL; wildcard hosts are
// dialled on loopback.
func BaseURL(bind string) string {
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func summarizeDialError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "ping timed out (daemon unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ping timed out (daemon unreachable)"
	}
	if errors.Is(err, unix.ECONNREFUSED) {
		return "not running (connection refused)"
	}
	return err.Error()
}
