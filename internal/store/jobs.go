package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JobRecord is the journal view of a filter job.
type JobRecord struct {
	ID          string
	InputID     string
	Filter      string
	Status      string
	ResultID    string
	Error       string
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

const jobColumns = "id, input_id, filter, status, result_id, error_message, submitted_at, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*JobRecord, error) {
	var (
		rec          JobRecord
		resultID     sql.NullString
		errorMessage sql.NullString
		submittedRaw string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.InputID, &rec.Filter, &rec.Status, &resultID, &errorMessage,
		&submittedRaw, &startedRaw, &finishedRaw); err != nil {
		return nil, err
	}
	rec.ResultID = resultID.String
	rec.Error = errorMessage.String
	if submitted, err := parseTimeString(submittedRaw); err == nil {
		rec.SubmittedAt = submitted
	}
	if startedRaw.Valid {
		if started, err := parseTimeString(startedRaw.String); err == nil {
			rec.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			rec.FinishedAt = &finished
		}
	}
	return &rec, nil
}

// RecordJob inserts or updates the journal entry for a job. Updates only
// move forward: a terminal entry is never overwritten and a running entry is
// not set back to queued, so a late write cannot undo a newer transition.
func (s *Store) RecordJob(ctx context.Context, rec JobRecord) error {
	if rec.ID == "" {
		return errors.New("job id is required")
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (`+jobColumns+`, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             status = excluded.status,
             result_id = excluded.result_id,
             error_message = excluded.error_message,
             started_at = excluded.started_at,
             finished_at = excluded.finished_at,
             updated_at = excluded.updated_at
         WHERE jobs.status NOT IN ('done', 'failed')
           AND NOT (jobs.status = 'running' AND excluded.status = 'queued')`,
		rec.ID,
		rec.InputID,
		rec.Filter,
		rec.Status,
		nullableString(rec.ResultID),
		nullableString(rec.Error),
		formatTime(rec.SubmittedAt),
		nullableTime(rec.StartedAt),
		nullableTime(rec.FinishedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

// GetJob fetches a job record by id. It returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// ListJobs returns the most recently submitted jobs first. A limit <= 0
// returns every record.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY submitted_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// JobStats returns a count of journal entries grouped by status.
func (s *Store) JobStats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// PruneJobs deletes journal entries in one of the terminal statuses that
// finished before cutoff.
func (s *Store) PruneJobs(ctx context.Context, cutoff time.Time, terminal ...string) (int64, error) {
	if len(terminal) == 0 {
		return 0, nil
	}
	args := []any{formatTime(cutoff)}
	for _, status := range terminal {
		args = append(args, status)
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE finished_at IS NOT NULL AND finished_at < ? AND status IN (`+makePlaceholders(len(terminal))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInterrupted marks jobs left queued or running by a previous process as
// failed. Returns the number of records updated.
func (s *Store) FailInterrupted(ctx context.Context, message string, active []string, failed string) (int64, error) {
	if len(active) == 0 {
		return 0, nil
	}
	now := formatTime(time.Now())
	args := []any{failed, message, now, now}
	for _, status := range active {
		args = append(args, status)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, finished_at = ?, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(active))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}
