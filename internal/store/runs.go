package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run represents one creature session from wake to shutdown.
type Run struct {
	ID         int64
	RunID      string
	StartedAt  int64
	EndedAt    *int64
	Status     string
	EventCount int
}

// NewRunID returns a short random run identifier. Eight hex chars is
// enough to tell sessions apart in logs and folder names.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// BeginRun records the start of a new session and returns it.
func (db *DB) BeginRun(runID string) (*Run, error) {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		INSERT INTO runs (run_id, started_at, status)
		VALUES (?, ?, 'active')
	`, runID, now)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	id, _ := result.LastInsertId()
	return &Run{
		ID:        id,
		RunID:     runID,
		StartedAt: now,
		Status:    "active",
	}, nil
}

// GetRun returns a run by its run_id, or nil if none exists.
func (db *DB) GetRun(runID string) (*Run, error) {
	var r Run
	err := db.QueryRow(`
		SELECT id, run_id, started_at, ended_at, status, event_count
		FROM runs WHERE run_id = ?
	`, runID).Scan(&r.ID, &r.RunID, &r.StartedAt, &r.EndedAt, &r.Status, &r.EventCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// EndRun marks a run as completed or failed.
func (db *DB) EndRun(runID, status string) error {
	now := time.Now().UnixMilli()
	result, err := db.Exec(`
		UPDATE runs SET status = ?, ended_at = ?
		WHERE run_id = ? AND status = 'active'
	`, status, now, runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no active run found for %s", runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, run_id, started_at, ended_at, status, event_count
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &r.EndedAt, &r.Status, &r.EventCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
