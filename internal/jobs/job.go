package jobs

import (
	"sync"
	"time"

	"pastiche/internal/artifact"
	"pastiche/internal/store"
)

// Status is a job's position in its state machine:
// queued -> running -> done | failed. Terminal states are final.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is done or failed.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Job is one request to apply a filter to an input artifact. Its ID equals
// the input artifact's ID.
type Job struct {
	ID          string
	InputID     string
	InputPath   string
	Filter      string
	SubmittedAt time.Time

	done chan struct{}
	once sync.Once

	mu         sync.RWMutex
	status     Status
	result     *artifact.Artifact
	err        error
	startedAt  time.Time
	finishedAt time.Time
}

// NewJob creates a job for input using filter.
func NewJob(input *artifact.Artifact, filter string) *Job {
	return &Job{
		ID:        input.ID,
		InputID:   input.ID,
		InputPath: input.Path,
		Filter:    filter,
		status:    StatusQueued,
		done:      make(chan struct{}),
	}
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the current state.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Result returns the output artifact, set only when the job is done.
func (j *Job) Result() *artifact.Artifact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Err returns the failure, set only when the job failed.
func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// FinishedAt returns when the job reached a terminal state, or zero.
func (j *Job) FinishedAt() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt
}

func (j *Job) markRunning(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusQueued {
		return false
	}
	j.status = StatusRunning
	j.startedAt = now
	return true
}

// finish records the terminal state once; later calls are ignored. settle,
// when non-nil, runs after the state is set but before waiters are released.
func (j *Job) finish(now time.Time, result *artifact.Artifact, err error, settle func()) bool {
	finished := false
	j.once.Do(func() {
		j.mu.Lock()
		if err != nil {
			j.status = StatusFailed
			j.err = err
		} else {
			j.status = StatusDone
			j.result = result
		}
		j.finishedAt = now
		j.mu.Unlock()
		if settle != nil {
			settle()
		}
		close(j.done)
		finished = true
	})
	return finished
}

// Record returns the journal view of the job.
func (j *Job) Record() store.JobRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec := store.JobRecord{
		ID:          j.ID,
		InputID:     j.InputID,
		Filter:      j.Filter,
		Status:      string(j.status),
		SubmittedAt: j.SubmittedAt,
	}
	if j.result != nil {
		rec.ResultID = j.result.ID
	}
	if j.err != nil {
		rec.Error = j.err.Error()
	}
	if !j.startedAt.IsZero() {
		started := j.startedAt
		rec.StartedAt = &started
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		rec.FinishedAt = &finished
	}
	return rec
}
