package artifact

import (
	"time"

	"github.com/google/uuid"

	"pastiche/internal/store"
)

// Kind classifies where an artifact lives and how long it is kept.
type Kind string

const (
	KindInput      Kind = "input"
	KindTempOutput Kind = "temp_output"
	KindPersisted  Kind = "persisted"
)

// ParseKind validates a kind name.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindInput, KindTempOutput, KindPersisted:
		return Kind(value), true
	default:
		return "", false
	}
}

// Working reports whether the kind lives in the working area.
func (k Kind) Working() bool {
	return k == KindInput || k == KindTempOutput
}

// Artifact is one image file tracked by id.
type Artifact struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	SourceID  string    `json:"source_id,omitempty"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	Format    string    `json:"format,omitempty"`
}

// AllocateID returns a new time-ordered unique identifier.
func AllocateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func fromRecord(rec *store.ArtifactRecord) *Artifact {
	if rec == nil {
		return nil
	}
	return &Artifact{
		ID:        rec.ID,
		Path:      rec.Path,
		Kind:      Kind(rec.Kind),
		CreatedAt: rec.CreatedAt,
		SourceID:  rec.SourceID,
		Size:      rec.Size,
		Checksum:  rec.Checksum,
		Format:    rec.Format,
	}
}

func (a *Artifact) record() store.ArtifactRecord {
	return store.ArtifactRecord{
		ID:        a.ID,
		Kind:      string(a.Kind),
		Path:      a.Path,
		Format:    a.Format,
		Size:      a.Size,
		Checksum:  a.Checksum,
		SourceID:  a.SourceID,
		CreatedAt: a.CreatedAt,
	}
}
