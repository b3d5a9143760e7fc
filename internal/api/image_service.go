package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pastiche/internal/artifact"
	"pastiche/internal/filters"
	"pastiche/internal/jobs"
	"pastiche/internal/logging"
	"pastiche/internal/services"
	"pastiche/internal/store"
)

// Registry resolves filters by name.
type Registry interface {
	Resolve(name string) (filters.Descriptor, error)
	Descriptors() []filters.Descriptor
}

// Artifacts abstracts the artifact store operations the service needs.
type Artifacts interface {
	WriteInput(ctx context.Context, data []byte) (*artifact.Artifact, error)
	Get(ctx context.Context, id string) (*artifact.Artifact, error)
	Save(ctx context.Context, id string) (*artifact.Artifact, error)
	LastSaved(ctx context.Context) (*artifact.Artifact, error)
	PurgeWorking(ctx context.Context, id string) error
	List(ctx context.Context, kinds ...artifact.Kind) ([]*artifact.Artifact, error)
	Sweep(ctx context.Context, olderThan time.Duration) (int, error)
}

// Queue abstracts the worker pool.
type Queue interface {
	Submit(job *jobs.Job) (*jobs.Job, error)
	Await(ctx context.Context, job *jobs.Job, timeout time.Duration) (*artifact.Artifact, error)
	Lookup(id string) (*jobs.Job, bool)
	Release(id string)
	Stats() jobs.Stats
}

// Index exposes read-only journal and index queries.
type Index interface {
	GetJob(ctx context.Context, id string) (*store.JobRecord, error)
	ListJobs(ctx context.Context, limit int) ([]*store.JobRecord, error)
	JobStats(ctx context.Context) (map[string]int, error)
	CountArtifacts(ctx context.Context) (map[string]int, error)
}

// ImageService orchestrates filter requests.
type ImageService struct {
	registry    Registry
	artifacts   Artifacts
	queue       Queue
	index       Index
	timeout     time.Duration
	maxPixels   int64
	purgeInputs bool
	logger      *slog.Logger
}

// Option customizes an ImageService.
type Option func(*ImageService)

// WithTimeout bounds how long ProcessImage waits for a job. Zero or negative
// waits without a bound.
func WithTimeout(timeout time.Duration) Option {
	return func(s *ImageService) {
		s.timeout = timeout
	}
}

// WithMaxPixels rejects uploads whose header announces more pixels than
// limit. Zero or negative uses imaging.DefaultMaxPixels.
func WithMaxPixels(limit int64) Option {
	return func(s *ImageService) {
		s.maxPixels = limit
	}
}

// WithPurgeInputs controls whether consumed inputs are removed after their
// job finished.
func WithPurgeInputs(purge bool) Option {
	return func(s *ImageService) {
		s.purgeInputs = purge
	}
}

// WithIndex enables job and artifact summaries backed by the state database.
func WithIndex(index Index) Option {
	return func(s *ImageService) {
		s.index = index
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ImageService) {
		s.logger = logging.NewComponentLogger(logger, "api")
	}
}

// NewImageService constructs the orchestrator.
func NewImageService(registry Registry, artifacts Artifacts, queue Queue, opts ...Option) *ImageService {
	s := &ImageService{
		registry:    registry,
		artifacts:   artifacts,
		queue:       queue,
		timeout:     2 * time.Minute,
		purgeInputs: true,
		logger:      logging.NewComponentLogger(nil, "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessImage applies filter to raw and returns the output artifact. The
// filter is resolved and the header checked before anything is stored, so
// an unknown filter or an oversized image never creates a job. When waiting
// fails after submission the result still carries JobID.
func (s *ImageService) ProcessImage(ctx context.Context, raw []byte, filter string) (ProcessResult, error) {
	desc, err := s.registry.Resolve(filter)
	if err != nil {
		return ProcessResult{}, err
	}
	cfg, err := filters.DecodeConfig(raw)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := cfg.CheckPixels(s.maxPixels); err != nil {
		return ProcessResult{}, services.Wrap(services.ErrValidation, "api", "process", "image has too many pixels", err)
	}

	input, err := s.artifacts.WriteInput(ctx, raw)
	if err != nil {
		return ProcessResult{}, err
	}
	ctx = services.WithJobID(services.WithFilter(ctx, desc.Name), input.ID)
	logger := logging.WithContext(ctx, s.logger)

	job, err := s.queue.Submit(jobs.NewJob(input, desc.Name))
	if err != nil {
		s.purgeInput(ctx, input.ID)
		return ProcessResult{}, err
	}

	out, err := s.queue.Await(ctx, job, s.timeout)
	if err != nil {
		if job.Status().Terminal() {
			s.finish(ctx, job)
		} else {
			logging.WarnWithContext(logger, "request stopped waiting for job", "job_wait_abandoned",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "poll the job id or raise workers.job_timeout_seconds"),
				logging.String(logging.FieldImpact, "the job keeps running and its output stays retrievable"),
			)
		}
		return ProcessResult{JobID: job.ID}, err
	}
	s.finish(ctx, job)
	return ProcessResult{Path: out.Path, ID: out.ID, JobID: job.ID}, nil
}

// finish drops the consumed input and stops tracking a terminal job.
func (s *ImageService) finish(ctx context.Context, job *jobs.Job) {
	s.purgeInput(ctx, job.InputID)
	s.queue.Release(job.ID)
}

func (s *ImageService) purgeInput(ctx context.Context, id string) {
	if !s.purgeInputs {
		return
	}
	if err := s.artifacts.PurgeWorking(context.WithoutCancel(ctx), id); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "input purge failed", "input_purge_failed",
			logging.String(logging.FieldArtifactID, id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the input stays until the working area sweep"),
		)
	}
}

// ImageDimensions reports the pixel size of raw.
func (s *ImageService) ImageDimensions(raw []byte) (Dimensions, error) {
	cfg, err := filters.DecodeConfig(raw)
	if err != nil {
		return Dimensions{}, err
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// SaveImage copies artifact id into the persisted slot. It reports false
// without an error when id is unknown.
func (s *ImageService) SaveImage(ctx context.Context, id string) (bool, error) {
	if _, err := s.artifacts.Save(ctx, strings.TrimSpace(id)); err != nil {
		if errors.Is(err, services.ErrArtifactNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LastSavedImage returns the path of the persisted image, if any.
func (s *ImageService) LastSavedImage(ctx context.Context) (string, bool, error) {
	art, err := s.artifacts.LastSaved(ctx)
	if err != nil {
		return "", false, err
	}
	if art == nil {
		return "", false, nil
	}
	return art.Path, true, nil
}

// Filters lists the loaded filters ordered by name.
func (s *ImageService) Filters() []FilterInfo {
	descs := s.registry.Descriptors()
	out := make([]FilterInfo, 0, len(descs))
	for _, desc := range descs {
		out = append(out, FromDescriptor(desc))
	}
	return out
}

// Artifacts lists indexed artifacts of the given kinds, or all kinds.
func (s *ImageService) Artifacts(ctx context.Context, kinds ...artifact.Kind) ([]ArtifactInfo, error) {
	arts, err := s.artifacts.List(ctx, kinds...)
	if err != nil {
		return nil, err
	}
	return FromArtifacts(arts), nil
}

// ArtifactFile resolves id to an artifact whose file exists.
func (s *ImageService) ArtifactFile(ctx context.Context, id string) (*artifact.Artifact, error) {
	return s.artifacts.Get(ctx, id)
}

// Job returns a job by id, preferring the live pool over the journal.
func (s *ImageService) Job(ctx context.Context, id string) (JobInfo, bool, error) {
	if job, ok := s.queue.Lookup(id); ok {
		return FromJob(job), true, nil
	}
	if s.index == nil {
		return JobInfo{}, false, nil
	}
	rec, err := s.index.GetJob(ctx, id)
	if err != nil || rec == nil {
		return JobInfo{}, false, err
	}
	return FromJobRecord(rec), true, nil
}

// Jobs lists the most recent journal entries, newest first.
func (s *ImageService) Jobs(ctx context.Context, limit int) ([]JobInfo, error) {
	if s.index == nil {
		return nil, nil
	}
	recs, err := s.index.ListJobs(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]JobInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FromJobRecord(rec))
	}
	return out, nil
}

// Sweep removes working artifacts older than olderThan.
func (s *ImageService) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	return s.artifacts.Sweep(ctx, olderThan)
}

// Status aggregates pool, registry and index counters.
func (s *ImageService) Status(ctx context.Context) (StatusSummary, error) {
	summary := StatusSummary{
		Pool:    s.queue.Stats(),
		Filters: len(s.registry.Descriptors()),
	}
	if s.index != nil {
		artifacts, err := s.index.CountArtifacts(ctx)
		if err != nil {
			return summary, err
		}
		jobStats, err := s.index.JobStats(ctx)
		if err != nil {
			return summary, err
		}
		summary.Artifacts = artifacts
		summary.Jobs = jobStats
	}
	last, err := s.artifacts.LastSaved(ctx)
	if err != nil {
		return summary, err
	}
	if last != nil {
		info := FromArtifact(last)
		summary.LastSaved = &info
	}
	return summary, nil
}
