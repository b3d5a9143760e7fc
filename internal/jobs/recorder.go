package jobs

import "time"

// Recorder receives queue metrics. Implementations must be safe for
// concurrent use.
type Recorder interface {
	JobQueued(filter string)
	JobStarted(filter string, wait time.Duration)
	JobFinished(filter string, status Status, duration time.Duration)
	QueueDepth(depth int)
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) JobQueued(string)                          {}
func (NopRecorder) JobStarted(string, time.Duration)          {}
func (NopRecorder) JobFinished(string, Status, time.Duration) {}
func (NopRecorder) QueueDepth(int)                            {}
