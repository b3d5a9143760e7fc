package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"pastiche/internal/config"
)

// LockProbe reports whether a daemon holds the single-instance lock.
type LockProbe struct {
	Held bool
	Path string
	PID  int
}

// ProbeLock attempts to take the daemon lock without blocking and releases
// it immediately. Held is true when another process owns it.
func ProbeLock(cfg *config.Config) LockProbe {
	if cfg == nil {
		return LockProbe{}
	}
	probe := LockProbe{Path: cfg.LockPath()}
	if _, err := os.Stat(probe.Path); err != nil {
		return probe
	}
	lock := flock.New(probe.Path)
	ok, err := lock.TryLock()
	if err != nil {
		return probe
	}
	if ok {
		_ = lock.Unlock()
		return probe
	}
	probe.Held = true
	probe.PID = readPID(cfg)
	return probe
}

func readPID(cfg *config.Config) int {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Detail renders a display-friendly summary for status UIs.
func (p LockProbe) Detail() string {
	if !p.Held {
		return "Not running"
	}
	if p.PID > 0 {
		return fmt.Sprintf("Running (pid %d)", p.PID)
	}
	return "Running"
}
