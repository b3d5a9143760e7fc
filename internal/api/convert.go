package api

import (
	"time"

	"pastiche/internal/artifact"
	"pastiche/internal/filters"
	"pastiche/internal/jobs"
	"pastiche/internal/store"
)

// FromDescriptor converts a filter descriptor to its API representation.
func FromDescriptor(desc filters.Descriptor) FilterInfo {
	refs := desc.ReferenceAssets
	if refs == nil {
		refs = []string{}
	}
	return FilterInfo{
		Name:        desc.Name,
		DisplayName: desc.DisplayName(),
		Kind:        string(desc.Kind),
		Strength:    desc.Strength,
		Description: desc.Description,
		References:  refs,
	}
}

// FromArtifact converts an artifact to its API representation.
func FromArtifact(art *artifact.Artifact) ArtifactInfo {
	if art == nil {
		return ArtifactInfo{}
	}
	return ArtifactInfo{
		ID:        art.ID,
		Kind:      string(art.Kind),
		Path:      art.Path,
		Format:    art.Format,
		Size:      art.Size,
		Checksum:  art.Checksum,
		SourceID:  art.SourceID,
		CreatedAt: formatTime(art.CreatedAt),
	}
}

// FromArtifacts converts a slice of artifacts.
func FromArtifacts(arts []*artifact.Artifact) []ArtifactInfo {
	out := make([]ArtifactInfo, 0, len(arts))
	for _, art := range arts {
		out = append(out, FromArtifact(art))
	}
	return out
}

// FromJobRecord converts a journal record to its API representation.
func FromJobRecord(rec *store.JobRecord) JobInfo {
	if rec == nil {
		return JobInfo{}
	}
	info := JobInfo{
		ID:          rec.ID,
		InputID:     rec.InputID,
		Filter:      rec.Filter,
		Status:      rec.Status,
		ResultID:    rec.ResultID,
		Error:       rec.Error,
		SubmittedAt: formatTime(rec.SubmittedAt),
	}
	if rec.StartedAt != nil {
		info.StartedAt = formatTime(*rec.StartedAt)
	}
	if rec.FinishedAt != nil {
		info.FinishedAt = formatTime(*rec.FinishedAt)
	}
	return info
}

// FromJob converts a live pool job.
func FromJob(job *jobs.Job) JobInfo {
	if job == nil {
		return JobInfo{}
	}
	rec := job.Record()
	return FromJobRecord(&rec)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
