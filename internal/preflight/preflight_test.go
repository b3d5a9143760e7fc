package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"pastiche/internal/store"
	"pastiche/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckReadableDirectoryOptional(t *testing.T) {
	result := CheckReadableDirectory("styles", filepath.Join(t.TempDir(), "nope"), true)
	if result.Passed || !result.Optional {
		t.Fatalf("expected optional failure, got %+v", result)
	}
	if failed := Failed([]Result{result}); len(failed) != 0 {
		t.Fatalf("optional failures should not count, got %+v", failed)
	}
}

func TestRunAllOnFreshConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	results := RunAll(context.Background(), cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	for _, r := range results {
		if r.Name == "Filters" && !strings.Contains(r.Detail, "sketch, vangogh") {
			t.Fatalf("unexpected filters detail %q", r.Detail)
		}
	}
}

func TestCheckFiltersReportsLoadError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFiltersDir(filepath.Join(t.TempDir(), "missing")))
	if res := CheckFilters(cfg); res.Passed {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestCheckDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if res := CheckDatabase(context.Background(), cfg.DatabasePath()); !res.Passed || !strings.Contains(res.Detail, "first start") {
		t.Fatalf("missing database should pass, got %+v", res)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatal(err)
	}
	_ = st.Close()
	if res := CheckDatabase(context.Background(), cfg.DatabasePath()); !res.Passed || !strings.Contains(res.Detail, "schema ok") {
		t.Fatalf("expected schema ok, got %+v", res)
	}
}

func TestCheckDaemon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ping" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	if res := CheckDaemon(context.Background(), srv.URL); !res.Passed {
		t.Fatalf("expected pass, got %s", res.Detail)
	}
	if res := CheckDaemon(context.Background(), srv.URL+"/down"); res.Passed || !strings.Contains(res.Detail, "503") {
		t.Fatalf("expected ping failure, got %+v", res)
	}
	if res := CheckDaemon(context.Background(), ""); res.Passed || !res.Optional {
		t.Fatalf("disabled adapter should be optional, got %+v", res)
	}
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:5000": "http://127.0.0.1:5000",
		"0.0.0.0:8080":   "http://127.0.0.1:8080",
		":9000":          "http://127.0.0.1:9000",
		"http://host:1/": "http://host:1",
		"localhost:5000": "http://localhost:5000",
	}
	for in, want := range cases {
		if got := BaseURL(in); got != want {
			t.Errorf("BaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProbeLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if probe := ProbeLock(cfg); probe.Held {
		t.Fatal("no lock file should mean not running")
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()
	if err := os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	probe := ProbeLock(cfg)
	if !probe.Held || probe.PID != 4242 {
		t.Fatalf("expected held lock with pid, got %+v", probe)
	}
	if probe.Detail() != "Running (pid 4242)" {
		t.Fatalf("unexpected detail %q", probe.Detail())
	}
}
