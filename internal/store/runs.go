package store

import (
	"context"
	"database/sql"
	"time"
)

// AnalysisRun is the audit row for one execution of the job.
type AnalysisRun struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	RunDate      string
	Source       string // "fems", "store"
	HTTPStatus   sql.NullInt64
	Readings     sql.NullInt64
	Stations     sql.NullInt64
	Zones        sql.NullInt64
	Diagnostics  sql.NullInt64
	Published    sql.NullString // comma separated sink/table pairs that succeeded
	Success      bool
	ErrorMessage sql.NullString
}

// StartRun creates a new audit row and returns it.
func (s *Store) StartRun(ctx context.Context, runDate time.Time, source string) (*AnalysisRun, error) {
	run := &AnalysisRun{
		StartedAt: time.Now().UTC(),
		RunDate:   runDate.In(s.loc).Format(dateFormat),
		Source:    source,
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (started_at, run_date, source, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.RunDate, run.Source)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun records the outcome of a run.
func (s *Store) CompleteRun(ctx context.Context, run *AnalysisRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs SET
			finished_at = ?,
			http_status = ?,
			readings = ?,
			stations = ?,
			zones = ?,
			diagnostics = ?,
			published = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.Readings, run.Stations, run.Zones,
		run.Diagnostics, run.Published, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentRuns returns the latest audit rows, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, run_date, source, http_status, readings,
		       stations, zones, diagnostics, published, success, error_message
		FROM analysis_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		var r AnalysisRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.RunDate, &r.Source, &r.HTTPStatus,
			&r.Readings, &r.Stations, &r.Zones, &r.Diagnostics, &r.Published, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
