package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pastiche/internal/fileutil"
	"pastiche/internal/imaging"
	"pastiche/internal/logging"
	"pastiche/internal/services"
	"pastiche/internal/store"
)

const (
	stagingDirName = ".staging"
	savedBaseName  = "last_saved"
	fileMode       = 0o644
	component      = "artifact"
)

// Index is the persistence the Store needs. *store.Store satisfies it.
type Index interface {
	InsertArtifact(ctx context.Context, rec store.ArtifactRecord) error
	GetArtifact(ctx context.Context, id string) (*store.ArtifactRecord, error)
	ListArtifacts(ctx context.Context, kinds ...string) ([]*store.ArtifactRecord, error)
	ArtifactsOlderThan(ctx context.Context, cutoff time.Time, kinds ...string) ([]*store.ArtifactRecord, error)
	DeleteArtifact(ctx context.Context, id string) error
	ReplaceLastSaved(ctx context.Context, rec store.ArtifactRecord, persistedKind string) ([]string, error)
	LastSaved(ctx context.Context) (*store.ArtifactRecord, error)
}

// Store manages the working and persisted areas.
type Store struct {
	workDir  string
	savedDir string
	index    Index
	logger   *slog.Logger
	now      func() time.Time

	// saveMu serializes the persisted file swap and pointer update.
	saveMu sync.Mutex
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, component)
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates the working, persisted and staging directories and removes
// staging leftovers from an interrupted previous run.
func New(workDir, savedDir string, index Index, opts ...Option) (*Store, error) {
	if index == nil {
		return nil, errors.New("artifact index is required")
	}
	workDir = filepath.Clean(strings.TrimSpace(workDir))
	savedDir = filepath.Clean(strings.TrimSpace(savedDir))
	if workDir == "." || savedDir == "." {
		return nil, errors.New("working and persisted directories are required")
	}
	if workDir == savedDir {
		return nil, errors.New("working and persisted directories must differ")
	}

	s := &Store{
		workDir:  workDir,
		savedDir: savedDir,
		index:    index,
		logger:   logging.NewComponentLogger(nil, component),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{s.workDir, s.savedDir} {
		staging := filepath.Join(dir, stagingDirName)
		if err := os.MkdirAll(staging, 0o755); err != nil {
			return nil, services.Wrap(services.ErrStorage, component, "init", "create "+staging, err)
		}
		if removed := clearDir(staging); removed > 0 {
			s.logger.Info("removed interrupted writes",
				logging.String("dir", staging),
				logging.Int("count", removed),
				logging.String(logging.FieldEventType, "staging_cleared"),
			)
		}
	}
	return s, nil
}

// WorkDir returns the working area root.
func (s *Store) WorkDir() string { return s.workDir }

// SavedDir returns the persisted area root.
func (s *Store) SavedDir() string { return s.savedDir }

// WriteInput stores raw request bytes in the working area.
func (s *Store) WriteInput(ctx context.Context, data []byte) (*Artifact, error) {
	return s.writeWorking(ctx, KindInput, "", data)
}

// WriteOutput stores filter output for jobID in the working area.
func (s *Store) WriteOutput(ctx context.Context, jobID string, data []byte) (*Artifact, error) {
	return s.writeWorking(ctx, KindTempOutput, jobID, data)
}

func (s *Store) writeWorking(ctx context.Context, kind Kind, sourceID string, data []byte) (*Artifact, error) {
	op := "write " + string(kind)
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, component, op, "empty content", nil)
	}
	format := imaging.Sniff(data)
	id := AllocateID()
	path := filepath.Join(s.workDir, id+imaging.Extension(format))

	digest, err := fileutil.WriteAtomic(filepath.Join(s.workDir, stagingDirName), path, data, fileMode)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, op, "write file", err)
	}

	art := &Artifact{
		ID:        id,
		Path:      path,
		Kind:      kind,
		CreatedAt: s.now().UTC(),
		SourceID:  sourceID,
		Size:      digest.Size,
		Checksum:  digest.Checksum,
		Format:    format,
	}
	if err := s.index.InsertArtifact(ctx, art.record()); err != nil {
		_ = fileutil.RemoveIfExists(path)
		return nil, services.Wrap(services.ErrStorage, component, op, "index artifact", err)
	}
	logging.WithContext(services.WithArtifactID(ctx, id), s.logger).Debug("artifact written",
		logging.String("kind", string(kind)),
		logging.Int64("size", digest.Size),
		logging.String(logging.FieldEventType, "artifact_written"),
	)
	return art, nil
}

// Get resolves id to an artifact whose file exists.
func (s *Store) Get(ctx context.Context, id string) (*Artifact, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrArtifactNotFound, component, "get", "empty id", nil)
	}
	rec, err := s.index.GetArtifact(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "get", "query index", err)
	}
	if rec == nil {
		return nil, services.Wrap(services.ErrArtifactNotFound, component, "get", id, nil)
	}
	if _, err := os.Stat(rec.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrArtifactNotFound, component, "get", id+": file missing", nil)
		}
		return nil, services.Wrap(services.ErrStorage, component, "get", "stat file", err)
	}
	return fromRecord(rec), nil
}

// Read returns the content of artifact id.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	art, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "read", id, err)
	}
	return data, nil
}

// Save copies artifact id into the persisted slot, replacing the previous
// last saved file and pointer. The persisted artifact gets a fresh id whose
// SourceID is id.
func (s *Store) Save(ctx context.Context, id string) (*Artifact, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Kind == KindPersisted {
		return src, nil
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	dst := filepath.Join(s.savedDir, savedBaseName+imaging.Extension(src.Format))
	digest, err := fileutil.CopyAtomic(filepath.Join(s.savedDir, stagingDirName), src.Path, dst, fileMode)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrArtifactNotFound, component, "save", id+": file vanished", nil)
		}
		return nil, services.Wrap(services.ErrStorage, component, "save", "copy into slot", err)
	}

	saved := &Artifact{
		ID:        AllocateID(),
		Path:      dst,
		Kind:      KindPersisted,
		CreatedAt: s.now().UTC(),
		SourceID:  src.ID,
		Size:      digest.Size,
		Checksum:  digest.Checksum,
		Format:    src.Format,
	}
	previous, prevErr := s.index.LastSaved(ctx)
	if _, err := s.index.ReplaceLastSaved(ctx, saved.record(), string(KindPersisted)); err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "save", "update pointer", err)
	}
	if prevErr != nil {
		logging.WarnWithContext(s.logger, "previous saved file lookup failed", "saved_lookup_failed",
			logging.Error(prevErr),
			logging.String(logging.FieldImpact, "a stale file may remain in the persisted area"),
		)
	}
	if prevErr == nil && previous != nil && previous.Path != dst {
		if err := fileutil.RemoveIfExists(previous.Path); err != nil {
			logging.WarnWithContext(s.logger, "previous saved file not removed", "saved_cleanup_failed",
				logging.String("path", previous.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale file remains in the persisted area"),
			)
		}
	}

	logging.WithContext(services.WithArtifactID(ctx, saved.ID), s.logger).Info("artifact saved",
		logging.String("source_id", src.ID),
		logging.String("path", dst),
		logging.String(logging.FieldEventType, "artifact_saved"),
	)
	return saved, nil
}

// LastSaved returns the persisted artifact, or nil when nothing was saved.
func (s *Store) LastSaved(ctx context.Context) (*Artifact, error) {
	rec, err := s.index.LastSaved(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "last saved", "query index", err)
	}
	if rec == nil {
		return nil, nil
	}
	if _, err := os.Stat(rec.Path); err != nil {
		logging.WarnWithContext(s.logger, "saved pointer refers to a missing file", "saved_file_missing",
			logging.String("path", rec.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "save an image again to repopulate the slot"),
			logging.String(logging.FieldImpact, "no last saved image is reported"),
		)
		return nil, nil
	}
	return fromRecord(rec), nil
}

// PurgeWorking removes a working artifact. Unknown or already purged ids are
// a no-op; persisted artifacts are refused.
func (s *Store) PurgeWorking(ctx context.Context, id string) error {
	rec, err := s.index.GetArtifact(ctx, id)
	if err != nil {
		return services.Wrap(services.ErrStorage, component, "purge", "query index", err)
	}
	if rec == nil {
		return nil
	}
	if !Kind(rec.Kind).Working() {
		return services.Wrap(services.ErrValidation, component, "purge", id+" is not a working artifact", nil)
	}
	if err := fileutil.RemoveIfExists(rec.Path); err != nil {
		return services.Wrap(services.ErrStorage, component, "purge", "remove file", err)
	}
	if err := s.index.DeleteArtifact(ctx, id); err != nil {
		return services.Wrap(services.ErrStorage, component, "purge", "delete index row", err)
	}
	return nil
}

// List returns indexed artifacts of the given kinds, oldest first.
func (s *Store) List(ctx context.Context, kinds ...Kind) ([]*Artifact, error) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	recs, err := s.index.ListArtifacts(ctx, names...)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, component, "list", "query index", err)
	}
	out := make([]*Artifact, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// Sweep purges working artifacts created more than olderThan ago and returns
// how many were removed. Persisted artifacts are never swept.
func (s *Store) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	recs, err := s.index.ArtifactsOlderThan(ctx, cutoff, string(KindInput), string(KindTempOutput))
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, component, "sweep", "query index", err)
	}

	removed := 0
	var errs []error
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.PurgeWorking(ctx, rec.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("working area swept",
			logging.Int("removed", removed),
			logging.Duration("older_than", olderThan),
			logging.String(logging.FieldEventType, "working_swept"),
		)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("sweep: %w", errors.Join(errs...))
	}
	return removed, nil
}

func clearDir(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}
