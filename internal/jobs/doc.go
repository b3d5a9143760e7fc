// Package jobs runs filter applications on a fixed pool of worker goroutines.
//
// Submit appends a Job to an unbounded FIFO and returns immediately; idle
// workers block on a wake channel rather than polling. Each worker resolves
// the filter, applies it to the input artifact, writes the output artifact
// and then closes the job's completion channel exactly once, so Await never
// misses a completion that happened before it subscribed.
//
// Workers pull jobs in submission order, but with more than one worker the
// completion order is not guaranteed to match. Failed jobs are reported and
// never retried.
//
// Stop closes intake and drains queued and running jobs. When the drain budget
// runs out, jobs still queued are failed with services.ErrQueueClosed; a job
// already writing its output finishes the write.
package jobs
