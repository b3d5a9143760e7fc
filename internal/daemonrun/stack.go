package daemonrun

import (
	"errors"
	"fmt"
	"log/slog"

	"pastiche/internal/api"
	"pastiche/internal/artifact"
	"pastiche/internal/config"
	"pastiche/internal/daemon"
	"pastiche/internal/filters"
	"pastiche/internal/jobs"
	"pastiche/internal/logging"
	"pastiche/internal/metrics"
	"pastiche/internal/store"
)

// Stack is the set of components behind one pastiche process. The pool is
// built but not started.
type Stack struct {
	Index     *store.Store
	Artifacts *artifact.Store
	Registry  *filters.Registry
	Pool      *jobs.Pool
	Service   *api.ImageService
	Metrics   *metrics.Recorder
}

// OpenStack wires config into a ready stack. A registry that fails to load
// is fatal.
func OpenStack(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	registry, err := filters.Load(cfg.Paths.FiltersDir, filters.FromConfig(cfg.Filters))
	if err != nil {
		return nil, err
	}
	logger.Info("filters loaded",
		logging.Int("count", registry.Len()),
		logging.Any("names", registry.Names()),
		logging.String("dir", cfg.Paths.FiltersDir),
		logging.String(logging.FieldEventType, "filters_loaded"),
	)

	index, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	arts, err := artifact.New(cfg.Paths.WorkDir, cfg.Paths.SavedDir, index, artifact.WithLogger(logger))
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	recorder := metrics.New()
	recorder.FiltersLoaded(registry.Len())
	pool := jobs.New(registry, arts,
		jobs.WithLogger(logger),
		jobs.WithJournal(index),
		jobs.WithRecorder(recorder),
		jobs.WithApplyFunc(filters.LimitedApply(cfg.API.MaxPixels)),
	)
	service := api.NewImageService(registry, arts, pool,
		api.WithTimeout(cfg.JobTimeout()),
		api.WithPurgeInputs(cfg.Retention.PurgeInputs),
		api.WithMaxPixels(cfg.API.MaxPixels),
		api.WithIndex(index),
		api.WithLogger(logger),
	)
	return &Stack{
		Index:     index,
		Artifacts: arts,
		Registry:  registry,
		Pool:      pool,
		Service:   service,
		Metrics:   recorder,
	}, nil
}

// DaemonDeps returns the stack as daemon dependencies.
func (s *Stack) DaemonDeps() daemon.Deps {
	return daemon.Deps{
		Service:   s.Service,
		Pool:      s.Pool,
		Artifacts: s.Artifacts,
		Index:     s.Index,
		Metrics:   s.Metrics,
	}
}

// Close releases the index.
func (s *Stack) Close() error {
	if s == nil || s.Index == nil {
		return nil
	}
	return s.Index.Close()
}
