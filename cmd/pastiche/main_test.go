package main

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pastiche/internal/daemonctl"
	"pastiche/internal/testsupport"
)

func TestCLIImageWorkflow(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "portrait.png")
	testsupport.WritePNG(t, input, 16, 12, 4)

	out, _, err := runCLI(t, []string{"size", input}, env.configPath)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	requireContains(t, out, "16x12")

	out, _, err = runCLI(t, []string{"last-saved"}, env.configPath)
	if err != nil {
		t.Fatalf("last-saved: %v", err)
	}
	requireContains(t, out, "No image saved yet")

	out, _, err = runCLI(t, []string{"apply", input, "--filter", "vangogh", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var applied applyOutput
	if err := json.Unmarshal([]byte(out), &applied); err != nil {
		t.Fatalf("decode apply output: %v\n%s", err, out)
	}
	if applied.ID == "" || applied.Path == "" || applied.Saved {
		t.Fatalf("unexpected apply output %+v", applied)
	}

	out, _, err = runCLI(t, []string{"save", applied.ID}, env.configPath)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	requireContains(t, out, "Saved "+applied.ID)

	out, _, err = runCLI(t, []string{"last-saved"}, env.configPath)
	if err != nil {
		t.Fatalf("last-saved: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), env.cfg.Paths.SavedDir) {
		t.Fatalf("expected path under %s, got %q", env.cfg.Paths.SavedDir, out)
	}

	out, _, err = runCLI(t, []string{"jobs"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, "vangogh")
	requireContains(t, out, "done")

	out, _, err = runCLI(t, []string{"artifacts", "--kind", "persisted", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	var arts []struct {
		Kind     string `json:"kind"`
		SourceID string `json:"sourceId"`
	}
	if err := json.Unmarshal([]byte(out), &arts); err != nil {
		t.Fatalf("decode artifacts: %v", err)
	}
	if len(arts) != 1 || arts[0].Kind != "persisted" || arts[0].SourceID != applied.ID {
		t.Fatalf("unexpected artifacts %+v", arts)
	}
}

func TestCLIApplyWithSave(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "in.png")
	testsupport.WritePNG(t, input, 8, 8, 2)

	out, _, err := runCLI(t, []string{"apply", input, "-f", "sketch", "--save"}, env.configPath)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	requireContains(t, out, "Output:")
	requireContains(t, out, "Saved as the last saved image")
}

func TestCLIApplyErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "in.png")
	testsupport.WritePNG(t, input, 4, 4, 1)

	if _, _, err := runCLI(t, []string{"apply", input}, env.configPath); err == nil || !strings.Contains(err.Error(), "--filter") {
		t.Fatalf("expected missing filter error, got %v", err)
	}

	_, _, err := runCLI(t, []string{"apply", input, "--filter", "monet"}, env.configPath)
	var apiErr *daemonctl.APIError
	if !errors.As(err, &apiErr) || apiErr.Category != "unknown_filter" {
		t.Fatalf("expected unknown_filter, got %v", err)
	}

	if _, _, err := runCLI(t, []string{"apply", filepath.Join(env.baseDir, "missing.png"), "-f", "sketch"}, env.configPath); err == nil {
		t.Fatal("expected read error")
	}

	if _, _, err := runCLI(t, []string{"save", "nope"}, env.configPath); err == nil || !strings.Contains(err.Error(), "no artifact") {
		t.Fatalf("expected unknown id error, got %v", err)
	}
}

func TestCLIFiltersTable(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"filters"}, env.configPath)
	if err != nil {
		t.Fatalf("filters: %v", err)
	}
	requireContains(t, out, "sketch")
	requireContains(t, out, "vangogh")
	requireContains(t, out, "Strength")
}

func TestCLIJobDetail(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "in.png")
	testsupport.WritePNG(t, input, 6, 6, 3)
	if _, _, err := runCLI(t, []string{"apply", input, "-f", "sketch"}, env.configPath); err != nil {
		t.Fatalf("apply: %v", err)
	}

	out, _, err := runCLI(t, []string{"jobs", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	var list []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil || len(list) != 1 {
		t.Fatalf("decode jobs: %v (%s)", err, out)
	}

	out, _, err = runCLI(t, []string{"jobs", list[0].ID}, env.configPath)
	if err != nil {
		t.Fatalf("jobs <id>: %v", err)
	}
	requireContains(t, out, "Status:    done")
	requireContains(t, out, "Filter:    sketch")
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if !report.Daemon.Running || !report.Daemon.Reachable {
		t.Fatalf("expected running reachable daemon, got %+v", report.Daemon)
	}
	if report.Runtime == nil || report.Runtime.Filters != 2 {
		t.Fatalf("expected runtime summary, got %+v", report.Runtime)
	}

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "== Runtime ==")
	requireContains(t, out, "Workers")
}

func TestCLIDaemonNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", testsupport.BaseDir(cfg))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	cfg.API.Bind = ln.Addr().String()
	_ = ln.Close()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	_, _, err = runCLI(t, []string{"filters"}, configPath)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}

	out, _, err := runCLI(t, []string{"stop"}, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")

	out, _, err = runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")
}

func TestCLISweep(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"sweep"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "daemon is running") {
		t.Fatalf("expected refusal while running, got %v", err)
	}

	if err := env.daemon.Stop(); err != nil {
		t.Fatalf("stop daemon: %v", err)
	}
	if _, _, err := runCLI(t, []string{"sweep", "--older-than", "10s"}, env.configPath); err == nil {
		t.Fatal("expected --older-than validation error")
	}
	out, _, err := runCLI(t, []string{"sweep", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	var res struct {
		Artifacts int `json:"artifacts"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil || res.Artifacts != 0 {
		t.Fatalf("unexpected sweep output %q (%v)", out, err)
	}
}

func TestCLILogs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", testsupport.BaseDir(cfg))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"logs"}, configPath)
	if err != nil || out != "" {
		t.Fatalf("logs without file: %q %v", out, err)
	}

	content := "INFO job queued job_id=abc\nINFO job queued job_id=def\nINFO job finished job_id=abc\n"
	if err := os.WriteFile(filepath.Join(cfg.Paths.LogDir, "pastiche.log"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = runCLI(t, []string{"logs", "--job", "abc"}, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Count(out, "\n") != 2 || strings.Contains(out, "def") {
		t.Fatalf("unexpected filtered logs %q", out)
	}
	out, _, err = runCLI(t, []string{"logs", "-n", "1"}, configPath)
	if err != nil || strings.TrimSpace(out) != "INFO job finished job_id=abc" {
		t.Fatalf("unexpected tail %q %v", out, err)
	}
}
