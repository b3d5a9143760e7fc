package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"pastiche/internal/config"
	"pastiche/internal/preflight"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `pastiche serve` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"serve"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForReady polls until a daemon holds the lock and, when the HTTP
// adapter is enabled, answers /ping.
func WaitForReady(ctx context.Context, cfg *config.Config, timeout time.Duration) (preflight.LockProbe, error) {
	deadline := time.Now().Add(timeout)
	var client *Client
	if strings.TrimSpace(cfg.API.Bind) != "" {
		client = NewClient(cfg.API.Bind, 2*time.Second)
	}
	var lastErr error
	for time.Now().Before(deadline) {
		probe := preflight.ProbeLock(cfg)
		if probe.Held {
			if client == nil {
				return probe, nil
			}
			if lastErr = client.Ping(ctx); lastErr == nil {
				return probe, nil
			}
		}
		select {
		case <-ctx.Done():
			return preflight.LockProbe{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for daemon")
	}
	return preflight.LockProbe{}, fmt.Errorf("daemon failed to start: %w (see %s)", lastErr, cfg.Paths.LogDir)
}

// EnsureStarted launches a daemon unless one already holds the lock.
func EnsureStarted(ctx context.Context, cfg *config.Config, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if probe := preflight.ProbeLock(cfg); probe.Held {
		return StartResult{State: StartStateAlreadyRunning, PID: probe.PID}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	probe, err := WaitForReady(ctx, cfg, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: probe.PID}, nil
}

// WaitForShutdown polls until the daemon lock is released.
func WaitForShutdown(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !preflight.ProbeLock(cfg).Held {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return errors.New("daemon did not stop: lock still held")
}

// Stop sends SIGTERM to the daemon recorded in the pid file and waits up to
// gracePeriod for it to drain. A daemon still alive afterwards is killed.
func Stop(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	probe := preflight.ProbeLock(cfg)
	if !probe.Held {
		return StopResult{}, ErrDaemonNotRunning
	}
	if probe.PID <= 0 {
		return StopResult{}, fmt.Errorf("unable to determine daemon pid (pid file: %s)", cfg.PIDPath())
	}
	if probe.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", probe.PID)
	}
	result := StopResult{PID: probe.PID}
	if err := unix.Kill(probe.PID, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon process %d: %w", probe.PID, err)
	}
	if err := WaitForShutdown(ctx, cfg, gracePeriod); err == nil {
		return result, nil
	}

	if err := unix.Kill(probe.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", probe.PID, err)
	}
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", cfg.PIDPath(), err)
	}
	result.ForcedKill = true
	return result, nil
}
