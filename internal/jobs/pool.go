package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pastiche/internal/artifact"
	"pastiche/internal/filters"
	"pastiche/internal/logging"
	"pastiche/internal/services"
	"pastiche/internal/store"
)

// Resolver looks up filters by name. *filters.Registry satisfies it.
type Resolver interface {
	Resolve(name string) (filters.Descriptor, error)
}

// Artifacts is the slice of the artifact store workers use.
type Artifacts interface {
	Read(ctx context.Context, id string) ([]byte, error)
	WriteOutput(ctx context.Context, jobID string, data []byte) (*artifact.Artifact, error)
}

// Journal persists job transitions. *store.Store satisfies it.
type Journal interface {
	RecordJob(ctx context.Context, rec store.JobRecord) error
}

// ApplyFunc transforms input bytes with a resolved filter.
type ApplyFunc func(desc filters.Descriptor, input []byte) ([]byte, error)

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Tracked   int   `json:"tracked"`
	Accepting bool  `json:"accepting"`
}

// Pool is an unbounded FIFO of jobs served by a fixed set of workers.
type Pool struct {
	registry  Resolver
	artifacts Artifacts
	apply     ApplyFunc
	journal   Journal
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	queue    []*Job
	jobs     map[string]*Job
	closed   bool
	running  bool
	workers  int
	cancel   context.CancelFunc
	wake     chan struct{}
	stopping chan struct{}
	wg       sync.WaitGroup

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = logging.NewComponentLogger(logger, "jobs")
	}
}

// WithJournal persists every job transition.
func WithJournal(j Journal) Option {
	return func(p *Pool) {
		p.journal = j
	}
}

// WithRecorder reports queue metrics.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithApplyFunc replaces filters.Apply, e.g. to inject slow or failing filters in tests.
func WithApplyFunc(fn ApplyFunc) Option {
	return func(p *Pool) {
		if fn != nil {
			p.apply = fn
		}
	}
}

// New constructs an idle pool. Call Start to launch workers.
func New(registry Resolver, artifacts Artifacts, opts ...Option) *Pool {
	p := &Pool{
		registry:  registry,
		artifacts: artifacts,
		apply:     filters.Apply,
		recorder:  NopRecorder{},
		logger:    logging.NewComponentLogger(nil, "jobs"),
		now:       time.Now,
		jobs:      make(map[string]*Job),
		wake:      make(chan struct{}, 1),
		stopping:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches workers goroutines. It fails if the pool is already running
// or was stopped.
func (p *Pool) Start(ctx context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("worker count must be positive, got %d", workers)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return services.Wrap(services.ErrQueueClosed, "jobs", "start", "pool was stopped", nil)
	}
	if p.running {
		p.mu.Unlock()
		return errors.New("job pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.workers = workers
	p.wg.Add(workers)
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		go p.worker(services.WithWorker(runCtx, i))
	}
	p.logger.Info("job pool started",
		logging.Int("workers", workers),
		logging.String(logging.FieldEventType, "pool_started"),
	)
	return nil
}

// Submit enqueues job and returns it immediately. It fails with
// services.ErrQueueClosed once Stop has been called, and with
// services.ErrValidation if a job for the same input is still in flight.
func (p *Pool) Submit(job *Job) (*Job, error) {
	if job == nil || job.ID == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "submit", "job id is required", nil)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, services.Wrap(services.ErrQueueClosed, "jobs", "submit", job.ID, nil)
	}
	if existing, ok := p.jobs[job.ID]; ok && !existing.Status().Terminal() {
		p.mu.Unlock()
		return nil, services.Wrap(services.ErrValidation, "jobs", "submit", "job "+job.ID+" already in flight", nil)
	}
	job.SubmittedAt = p.now().UTC()
	p.queue = append(p.queue, job)
	p.jobs[job.ID] = job
	depth := len(p.queue)
	p.mu.Unlock()

	p.signal()
	p.recorder.JobQueued(job.Filter)
	p.recorder.QueueDepth(depth)
	p.record(job)
	logging.WithContext(jobContext(context.Background(), job), p.logger).Debug("job queued",
		logging.Int("queue_depth", depth),
		logging.String(logging.FieldEventType, "job_queued"),
	)
	return job, nil
}

// SubmitAsync enqueues job without returning a handle.
func (p *Pool) SubmitAsync(job *Job) error {
	_, err := p.Submit(job)
	return err
}

// Await blocks until job reaches a terminal state, timeout elapses or ctx is
// cancelled. On timeout it returns services.ErrTimeout and the job keeps
// running. A timeout <= 0 waits without a bound.
func (p *Pool) Await(ctx context.Context, job *Job, timeout time.Duration) (*artifact.Artifact, error) {
	if job == nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "await", "nil job", nil)
	}
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-job.Done():
		if err := job.Err(); err != nil {
			return nil, err
		}
		return job.Result(), nil
	case <-expired:
		return nil, services.Wrap(services.ErrTimeout, "jobs", "await",
			fmt.Sprintf("job %s not finished after %s", job.ID, timeout), nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns a tracked job by id.
func (p *Pool) Lookup(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[id]
	return job, ok
}

// Release stops tracking a finished job. Jobs still queued or running are kept.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if job, ok := p.jobs[id]; ok && job.Status().Terminal() {
		delete(p.jobs, id)
	}
}

// Prune releases finished jobs older than olderThan and returns how many
// were dropped.
func (p *Pool) Prune(olderThan time.Duration) int {
	cutoff := p.now().Add(-olderThan)
	p.mu.Lock()
	defer p.mu.Unlock()
	pruned := 0
	for id, job := range p.jobs {
		finished := job.FinishedAt()
		if job.Status().Terminal() && finished.Before(cutoff) {
			delete(p.jobs, id)
			pruned++
		}
	}
	return pruned
}

// Stats reports queue depth and counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Queued:    len(p.queue),
		Running:   p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Tracked:   len(p.jobs),
		Accepting: !p.closed,
	}
}

// Stop closes intake and waits for queued and running jobs to finish. If ctx
// ends first, jobs still queued fail with services.ErrQueueClosed and Stop
// returns ctx.Err() without waiting for running jobs.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopping)
	cancel := p.cancel
	running := p.running
	p.mu.Unlock()

	if !running {
		p.failQueued("pool stopped before start")
		return nil
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		cancel()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.logger.Info("job pool drained",
			logging.Int64("completed", p.completed.Load()),
			logging.Int64("failed", p.failed.Load()),
			logging.String(logging.FieldEventType, "pool_stopped"),
		)
		return nil
	case <-ctx.Done():
		abandoned := p.failQueued("shutdown deadline reached")
		cancel()
		logging.WarnWithContext(p.logger, "job pool stopped before draining", "pool_drain_timeout",
			logging.Int("abandoned", abandoned),
			logging.Int64("running", p.active.Load()),
			logging.String(logging.FieldErrorHint, "raise workers.shutdown_timeout_seconds"),
			logging.String(logging.FieldImpact, "queued jobs were failed without running"),
		)
		return ctx.Err()
	}
}

func (p *Pool) failQueued(reason string) int {
	p.mu.Lock()
	pending := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, job := range pending {
		err := services.Wrap(services.ErrQueueClosed, "jobs", "stop", reason, nil)
		job.finish(p.now().UTC(), nil, err, func() {
			p.failed.Add(1)
			p.recorder.JobFinished(job.Filter, StatusFailed, 0)
			p.record(job)
		})
	}
	p.recorder.QueueDepth(0)
	return len(pending)
}

func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// dequeue blocks until a job is available. It returns false once the pool is
// closed and the queue is empty, or ctx is cancelled.
func (p *Pool) dequeue(ctx context.Context) (*Job, bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			job := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			remaining := len(p.queue)
			p.mu.Unlock()
			if remaining > 0 {
				p.signal()
			}
			p.recorder.QueueDepth(remaining)
			return job, true
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-p.wake:
		case <-p.stopping:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		job, ok := p.dequeue(ctx)
		if !ok {
			return
		}
		p.run(ctx, job)
	}
}

func (p *Pool) run(ctx context.Context, job *Job) {
	if !job.markRunning(p.now().UTC()) {
		return
	}
	ctx = jobContext(ctx, job)
	logger := logging.WithContext(ctx, p.logger)
	p.active.Add(1)
	defer p.active.Add(-1)

	started := p.now()
	p.recorder.JobStarted(job.Filter, started.Sub(job.SubmittedAt))
	p.record(job)
	logger.Debug("job started", logging.String(logging.FieldEventType, "job_started"))

	result, err := p.execute(ctx, job)
	duration := p.now().Sub(started)
	job.finish(p.now().UTC(), result, err, func() {
		status := StatusDone
		if err != nil {
			status = StatusFailed
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
		p.recorder.JobFinished(job.Filter, status, duration)
		p.record(job)
	})

	if err != nil {
		attrs := append([]logging.Attr{
			logging.Duration("duration", duration),
			logging.String(logging.FieldErrorHint, "check the input image and filter references"),
			logging.String(logging.FieldImpact, "request receives an error"),
		}, logging.ErrorAttrs(err)...)
		logging.WarnWithContext(logger, "job failed", "job_failed", attrs...)
		return
	}
	logger.Info("job completed",
		logging.String("output_id", result.ID),
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "job_completed"),
	)
}

// execute never panics; a panic anywhere in the job becomes a filter
// execution error.
func (p *Pool) execute(ctx context.Context, job *Job) (result *artifact.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.WithContext(ctx, p.logger).Error("job panicked",
				logging.Any("panic", r),
				logging.String("stack", strings.TrimSpace(string(debug.Stack()))),
				logging.String(logging.FieldEventType, "job_panic"),
			)
			result = nil
			err = services.Wrap(services.ErrFilterExecution, "jobs", "execute", fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	desc, err := p.registry.Resolve(job.Filter)
	if err != nil {
		return nil, err
	}
	input, err := p.artifacts.Read(ctx, job.InputID)
	if err != nil {
		return nil, err
	}
	output, err := p.apply(desc, input)
	if err != nil {
		if !errors.Is(err, services.ErrFilterExecution) {
			err = services.Wrap(services.ErrFilterExecution, "jobs", "apply", desc.Name, err)
		}
		return nil, err
	}
	// A started write completes even when shutdown cancels ctx.
	return p.artifacts.WriteOutput(context.WithoutCancel(ctx), job.ID, output)
}

func (p *Pool) record(job *Job) {
	if p.journal == nil {
		return
	}
	if err := p.journal.RecordJob(context.Background(), job.Record()); err != nil {
		logging.WarnWithContext(p.logger, "job journal write failed", "job_journal_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database"),
			logging.String(logging.FieldImpact, "job listing may be stale"),
		)
	}
}

func jobContext(ctx context.Context, job *Job) context.Context {
	ctx = services.WithJobID(ctx, job.ID)
	return services.WithFilter(ctx, job.Filter)
}
