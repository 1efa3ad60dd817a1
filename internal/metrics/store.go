package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Training run outcomes.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TrainingRun records one execution of the training job.
type TrainingRun struct {
	RunID              string        `json:"run_id"`
	Version            int           `json:"version"`
	Trigger            string        `json:"trigger"`
	Status             string        `json:"status"`
	SyntheticRows      int           `json:"synthetic_rows"`
	SubmissionRows     int           `json:"submission_rows"`
	SubmissionsSkipped int           `json:"submissions_skipped"`
	Accuracy           float64       `json:"accuracy"`
	Duration           time.Duration `json:"duration"`
	Error              string        `json:"error,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
}

// Store handles persistence of training runs to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a run.
func (s *Store) Record(ctx context.Context, r TrainingRun) error {
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_runs (
			run_id, version, trigger, status, synthetic_rows, submission_rows,
			submissions_skipped, accuracy, duration_ms, error, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Version, r.Trigger, r.Status, r.SyntheticRows, r.SubmissionRows,
		r.SubmissionsSkipped, r.Accuracy, r.Duration.Milliseconds(), r.Error, started.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, version, trigger, status, synthetic_rows, submission_rows,
			submissions_skipped, accuracy, duration_ms, error, started_at
		FROM training_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var out []TrainingRun
	for rows.Next() {
		var r TrainingRun
		var durationMS, startedMS int64
		if err := rows.Scan(&r.RunID, &r.Version, &r.Trigger, &r.Status, &r.SyntheticRows, &r.SubmissionRows,
			&r.SubmissionsSkipped, &r.Accuracy, &durationMS, &r.Error, &startedMS); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyRuns summarizes the runs of one day.
type DailyRuns struct {
	Date         string  `json:"date"`
	Total        int     `json:"total"`
	Failed       int     `json:"failed"`
	MeanAccuracy float64 `json:"mean_accuracy"`
}

// GetDailyRuns summarizes runs for the last N days, newest day first.
func (s *Store) GetDailyRuns(ctx context.Context, days int) ([]DailyRuns, error) {
	since := time.Now().AddDate(0, 0, -days).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', started_at / 1000, 'unixepoch') AS day,
			COUNT(*),
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
			AVG(CASE WHEN status = ? THEN accuracy END)
		FROM training_runs
		WHERE started_at >= ?
		GROUP BY day
		ORDER BY day DESC`, StatusFailed, StatusSuccess, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily runs: %w", err)
	}
	defer rows.Close()

	var out []DailyRuns
	for rows.Next() {
		var d DailyRuns
		var mean sql.NullFloat64
		if err := rows.Scan(&d.Date, &d.Total, &d.Failed, &mean); err != nil {
			return nil, fmt.Errorf("failed to scan daily runs: %w", err)
		}
		if mean.Valid {
			d.MeanAccuracy = mean.Float64
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Cleanup removes runs older than the specified number of days.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().AddDate(0, 0, -olderThanDays).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM training_runs WHERE started_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up training runs: %w", err)
	}
	return res.RowsAffected()
}
