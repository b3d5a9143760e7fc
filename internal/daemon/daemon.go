package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"pastiche/internal/api"
	"pastiche/internal/artifact"
	"pastiche/internal/config"
	"pastiche/internal/jobs"
	"pastiche/internal/logging"
	"pastiche/internal/metrics"
	"pastiche/internal/store"
)

// Deps are the components a daemon coordinates.
type Deps struct {
	Service   *api.ImageService
	Pool      *jobs.Pool
	Artifacts *artifact.Store
	Index     *store.Store
	Metrics   *metrics.Recorder
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	service   *api.ImageService
	pool      *jobs.Pool
	artifacts *artifact.Store
	index     *store.Store
	metrics   *metrics.Recorder
	server    *apiServer
	logPath   string

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	sweepDone chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool              `json:"running"`
	PID          int               `json:"pid"`
	Address      string            `json:"address,omitempty"`
	DatabasePath string            `json:"databasePath"`
	LockFilePath string            `json:"lockFilePath"`
	LogPath      string            `json:"logPath,omitempty"`
	Summary      api.StatusSummary `json:"summary"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Service == nil || deps.Pool == nil || deps.Artifacts == nil || deps.Index == nil {
		return nil, errors.New("daemon requires config, image service, job pool, artifact store, and index")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		service:   deps.Service,
		pool:      deps.Pool,
		artifacts: deps.Artifacts,
		index:     deps.Index,
		metrics:   deps.Metrics,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	if dir := cfg.Paths.LogDir; dir != "" {
		d.logPath = filepath.Join(dir, "pastiche.log")
	}
	d.server = newAPIServer(cfg, deps.Service, deps.Metrics, logger)
	return d, nil
}

// SetLogPath overrides the log path reported by Status.
func (d *Daemon) SetLogPath(path string) {
	d.logPath = path
}

// Start acquires the daemon lock, recovers the journal, and launches workers,
// the sweeper, and the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("ensure lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pastiche daemon instance is already running")
	}

	if n, err := d.index.FailInterrupted(ctx, "interrupted by daemon restart",
		[]string{string(jobs.StatusQueued), string(jobs.StatusRunning)}, string(jobs.StatusFailed)); err != nil {
		logging.WarnWithContext(d.logger, "journal recovery failed", "journal_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale jobs may be listed as running"),
		)
	} else if n > 0 {
		d.logger.Info("marked interrupted jobs as failed",
			logging.Int64("count", n),
			logging.String(logging.FieldEventType, "journal_recovered"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.pool.Start(runCtx, d.cfg.Workers.Count); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start job pool: %w", err)
	}
	if err := d.server.start(); err != nil {
		cancel()
		_ = d.pool.Stop(context.Background())
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.sweepDone = make(chan struct{})
	go d.sweepLoop(runCtx, d.sweepDone)

	d.running.Store(true)
	d.logger.Info("pastiche daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.cfg.Workers.Count),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop closes the listener, drains the pool within the shutdown budget, and
// releases the daemon lock.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := d.server.stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop api server: %w", err))
	}
	if err := d.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain job pool: %w", err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.sweepDone != nil {
		<-d.sweepDone
		d.sweepDone = nil
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the next start may report a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("pastiche daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return errors.Join(errs...)
}

// Close stops the daemon and releases the index.
func (d *Daemon) Close() error {
	stopErr := d.Stop()
	return errors.Join(stopErr, d.index.Close())
}

// Running reports whether Start succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the bound listener address, or "" when the HTTP adapter is off.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Handler exposes the HTTP routes, e.g. for httptest servers.
func (d *Daemon) Handler() http.Handler {
	return d.server.handler
}

// Status returns daemon runtime information.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.service.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Address:      d.Addr(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Summary:      summary,
	}, err
}
