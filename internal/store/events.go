package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types written by the behavior loop.
const (
	EventMood          = "mood_evaluation"
	EventDecision      = "decision"
	EventDrawing       = "drawing"
	EventImageDetected = "image_detected"
	EventError         = "error"
)

// Event is one behavior log entry.
type Event struct {
	ID        int64
	RunID     string
	EventType string
	Payload   json.RawMessage
	CreatedAt int64
}

// AppendEvent logs an event for the given run. payload is marshaled to
// JSON so callers can pass whatever structure suits the event type.
func (db *DB) AppendEvent(runID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	now := time.Now().UnixMilli()
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin event: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO events (run_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, runID, eventType, string(body), now); err != nil {
		tx.Rollback()
		return fmt.Errorf("insert event: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE runs SET event_count = event_count + 1 WHERE run_id = ?
	`, runID); err != nil {
		tx.Rollback()
		return fmt.Errorf("bump event count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// ListEvents returns events for a run, newest first. eventType filters
// when non-empty.
func (db *DB) ListEvents(runID, eventType string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, run_id, event_type, payload, created_at
		FROM events WHERE run_id = ?`
	args := []any{runID}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.RunID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}
