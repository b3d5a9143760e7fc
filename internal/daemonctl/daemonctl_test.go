package daemonctl_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pastiche/internal/api"
	"pastiche/internal/config"
	"pastiche/internal/daemon"
	"pastiche/internal/daemonctl"
	"pastiche/internal/daemonrun"
	"pastiche/internal/testsupport"
)

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	stack, err := daemonrun.OpenStack(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStack: %v", err)
	}
	d, err := daemon.New(cfg, stack.DaemonDeps(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return d
}

func newClient(t *testing.T, opts ...testsupport.ConfigOption) (*daemonctl.Client, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.API.Bind = ""
	d := startDaemon(t, cfg)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return daemonctl.NewClient(srv.URL, 10*time.Second), cfg
}

func TestClientRoundTrip(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	filters, err := client.Filters(ctx)
	if err != nil {
		t.Fatalf("Filters: %v", err)
	}
	if len(filters) != 2 || filters[0].Name != "sketch" || filters[1].Name != "vangogh" {
		t.Fatalf("unexpected filters %+v", filters)
	}

	dims, err := client.Size(ctx, testsupport.PNGBytes(t, 12, 9, 1), "in.png")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if dims.Width != 12 || dims.Height != 9 {
		t.Fatalf("unexpected dims %+v", dims)
	}

	if _, ok, err := client.LastSaved(ctx); err != nil || ok {
		t.Fatalf("LastSaved before save: ok=%v err=%v", ok, err)
	}

	res, err := client.Process(ctx, testsupport.PNGBytes(t, 12, 9, 1), "in.png", "vangogh")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ID == "" || !strings.HasSuffix(res.Path, ".png") {
		t.Fatalf("unexpected result %+v", res)
	}

	saved, err := client.Save(ctx, res.ID)
	if err != nil || !saved {
		t.Fatalf("Save: saved=%v err=%v", saved, err)
	}
	path, ok, err := client.LastSaved(ctx)
	if err != nil || !ok || path == "" {
		t.Fatalf("LastSaved: path=%q ok=%v err=%v", path, ok, err)
	}

	saved, err = client.Save(ctx, "missing")
	if err != nil || saved {
		t.Fatalf("Save unknown: saved=%v err=%v", saved, err)
	}

	arts, err := client.Artifacts(ctx, "persisted")
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(arts) != 1 || arts[0].Path != path {
		t.Fatalf("unexpected persisted artifacts %+v", arts)
	}

	jobs, err := client.Jobs(ctx, 10)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != "done" || jobs[0].ResultID != res.ID {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
	job, err := client.Job(ctx, jobs[0].ID)
	if err != nil || job.Filter != "vangogh" {
		t.Fatalf("Job: %+v err=%v", job, err)
	}

	summary, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if summary.Filters != 2 || summary.LastSaved == nil || summary.Pool.Completed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestClientAPIError(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.Process(context.Background(), testsupport.PNGBytes(t, 4, 4, 1), "in.png", "monet")
	var apiErr *daemonctl.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Category != api.CategoryUnknownFilter {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	_, err = client.Job(context.Background(), "nope")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestClientDaemonNotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := daemonctl.NewClient(url, time.Second)
	if err := client.Ping(context.Background()); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.Stop(context.Background(), cfg, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopRequiresPID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = ""
	startDaemon(t, cfg)

	_, err := daemonctl.Stop(context.Background(), cfg, time.Second)
	if err == nil || !strings.Contains(err.Error(), "pid") {
		t.Fatalf("expected pid error, got %v", err)
	}
}

func TestWaitForReadyAndShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:0"
	d := startDaemon(t, cfg)
	cfg.API.Bind = d.Addr()

	probe, err := daemonctl.WaitForReady(context.Background(), cfg, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForReady: %v", err)
	}
	if !probe.Held {
		t.Fatal("expected lock held")
	}

	result, err := daemonctl.EnsureStarted(context.Background(), cfg, "/nonexistent/pastiche", daemonctl.LaunchOptions{}, time.Second)
	if err != nil || result.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("EnsureStarted: %+v err=%v", result, err)
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := daemonctl.WaitForShutdown(context.Background(), cfg, 2*time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}
