package api

import "pastiche/internal/jobs"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ProcessResult identifies the output of a filter request. JobID is set as
// soon as the job was submitted, so a request that timed out can still be
// followed through /jobs/{id}; Path and ID are set only on success.
type ProcessResult struct {
	Path  string `json:"path"`
	ID    string `json:"id"`
	JobID string `json:"jobId,omitempty"`
}

// Dimensions is the pixel size of an image.
type Dimensions struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// FilterInfo describes a loaded filter.
type FilterInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Kind        string   `json:"kind"`
	Strength    float64  `json:"strength"`
	Description string   `json:"description,omitempty"`
	References  []string `json:"references"`
}

// ArtifactInfo describes an indexed artifact.
type ArtifactInfo struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	Format    string `json:"format"`
	Size      int64  `json:"size"`
	Checksum  string `json:"checksum"`
	SourceID  string `json:"sourceId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// JobInfo describes a job from the pool or the journal.
type JobInfo struct {
	ID          string `json:"id"`
	InputID     string `json:"inputId"`
	Filter      string `json:"filter"`
	Status      string `json:"status"`
	ResultID    string `json:"resultId,omitempty"`
	Error       string `json:"error,omitempty"`
	SubmittedAt string `json:"submittedAt,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
}

// StatusSummary aggregates runtime information for status views.
type StatusSummary struct {
	Pool      jobs.Stats     `json:"pool"`
	Filters   int            `json:"filters"`
	Artifacts map[string]int `json:"artifacts"`
	Jobs      map[string]int `json:"jobs"`
	LastSaved *ArtifactInfo  `json:"lastSaved,omitempty"`
}
