package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ArtifactRecord is one row of the artifact index.
type ArtifactRecord struct {
	ID        string
	Kind      string
	Path      string
	Format    string
	Size      int64
	Checksum  string
	SourceID  string
	CreatedAt time.Time
}

const artifactColumns = "id, kind, path, format, size, checksum, source_id, created_at"

func scanArtifact(scanner interface{ Scan(dest ...any) error }) (*ArtifactRecord, error) {
	var (
		rec        ArtifactRecord
		format     sql.NullString
		checksum   sql.NullString
		sourceID   sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&rec.ID, &rec.Kind, &rec.Path, &format, &rec.Size, &checksum, &sourceID, &createdRaw); err != nil {
		return nil, err
	}
	rec.Format = format.String
	rec.Checksum = checksum.String
	rec.SourceID = sourceID.String
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return &rec, nil
}

// InsertArtifact records a new artifact.
func (s *Store) InsertArtifact(ctx context.Context, rec ArtifactRecord) error {
	if rec.ID == "" {
		return errors.New("artifact id is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Kind,
		rec.Path,
		nullableString(rec.Format),
		rec.Size,
		nullableString(rec.Checksum),
		nullableString(rec.SourceID),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetArtifact fetches an artifact by id. It returns nil, nil when absent.
func (s *Store) GetArtifact(ctx context.Context, id string) (*ArtifactRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id)
	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return rec, nil
}

// ListArtifacts returns artifacts of the given kinds, oldest first. No kinds
// means all kinds.
func (s *Store) ListArtifacts(ctx context.Context, kinds ...string) ([]*ArtifactRecord, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts`
	args := make([]any, 0, len(kinds))
	if len(kinds) > 0 {
		query += ` WHERE kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	query += ` ORDER BY created_at, id`
	return s.queryArtifacts(ctx, query, args...)
}

// ArtifactsOlderThan returns artifacts of the given kinds created before cutoff.
func (s *Store) ArtifactsOlderThan(ctx context.Context, cutoff time.Time, kinds ...string) ([]*ArtifactRecord, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE created_at < ?`
	args := []any{formatTime(cutoff)}
	if len(kinds) > 0 {
		query += ` AND kind IN (` + makePlaceholders(len(kinds)) + `)`
		for _, kind := range kinds {
			args = append(args, kind)
		}
	}
	query += ` ORDER BY created_at, id`
	return s.queryArtifacts(ctx, query, args...)
}

func (s *Store) queryArtifacts(ctx context.Context, query string, args ...any) ([]*ArtifactRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteArtifact removes an index row. Deleting an unknown id is a no-op.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM artifacts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// CountArtifacts returns the number of indexed artifacts per kind.
func (s *Store) CountArtifacts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT kind, COUNT(1) FROM artifacts GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("count artifacts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}

// ReplaceLastSaved records rec as the persisted artifact and points the saved
// slot at it in one transaction. Previously persisted rows are removed, since
// the slot holds a single file. The ids of the replaced rows are returned.
func (s *Store) ReplaceLastSaved(ctx context.Context, rec ArtifactRecord, persistedKind string) ([]string, error) {
	if rec.ID == "" {
		return nil, errors.New("artifact id is required")
	}
	ctx = ensureContext(ctx)
	var replaced []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		replaced = replaced[:0]
		rows, err := tx.QueryContext(ctx, `SELECT id FROM artifacts WHERE kind = ?`, persistedKind)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			replaced = append(replaced, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM saved_slot`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE kind = ?`, persistedKind); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artifacts (`+artifactColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Kind, rec.Path, nullableString(rec.Format), rec.Size,
			nullableString(rec.Checksum), nullableString(rec.SourceID), formatTime(rec.CreatedAt),
		); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO saved_slot (slot, artifact_id, updated_at) VALUES (1, ?, ?)`,
			rec.ID, formatTime(time.Now()),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replace last saved: %w", err)
	}
	return replaced, nil
}

// LastSaved returns the artifact the saved slot points at, or nil when unset.
func (s *Store) LastSaved(ctx context.Context) (*ArtifactRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT a.id, a.kind, a.path, a.format, a.size, a.checksum, a.source_id, a.created_at
         FROM saved_slot s JOIN artifacts a ON a.id = s.artifact_id
         WHERE s.slot = 1`)
	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last saved: %w", err)
	}
	return rec, nil
}
