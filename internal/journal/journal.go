// Package journal provides the durable seal journal: a SQLite log of every
// station execution and every sealed receipt.
//
// The journal is evidence, not state: the filesystem artifacts remain the
// source of truth, and `waystation replay` re-derives receipts from them
// and checks the result against what was journaled here.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal wraps the SQLite database. WAL mode allows concurrent readers
// while one run appends.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at the given path.
// Idempotent: pragmas and schema apply on every open.
//
// Configuration:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - single writer connection to avoid SQLITE_BUSY
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// SealRecord is one journaled receipt seal. ID is content-addressed from
// the seal's canonical inputs, so the same seal journaled twice collapses
// to one row.
type SealRecord struct {
	ID                string
	RunID             string
	Flow              string
	Status            string
	RecommendedAction string
	Routing           string // canonical JSON of the routing decision
	Receipt           string // full receipt JSON
	EvidenceSHA       string
	SealedAt          time.Time
}

// AppendSeal inserts a seal record. ON CONFLICT(id) DO NOTHING makes the
// write idempotent; other constraint violations still error.
func (j *Journal) AppendSeal(ctx context.Context, rec SealRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("append seal: empty id")
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO seals
		(id, run_id, flow, status, recommended_action, routing, receipt, evidence_sha, sealed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.RunID,
		rec.Flow,
		rec.Status,
		rec.RecommendedAction,
		rec.Routing,
		rec.Receipt,
		rec.EvidenceSHA,
		rec.SealedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append seal: %w", err)
	}
	return nil
}

// LastSeal returns the most recent seal for a run/flow, or nil when the
// flow has never sealed. Most recent means highest insertion seq;
// sealed_at is display text and never used for ordering.
func (j *Journal) LastSeal(ctx context.Context, runID, flow string) (*SealRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, run_id, flow, status, recommended_action, routing, receipt, evidence_sha, sealed_at
		FROM seals
		WHERE run_id = ? AND flow = ?
		ORDER BY seq DESC
		LIMIT 1
	`, runID, flow)

	var rec SealRecord
	var sealedAt string
	err := row.Scan(&rec.ID, &rec.RunID, &rec.Flow, &rec.Status, &rec.RecommendedAction,
		&rec.Routing, &rec.Receipt, &rec.EvidenceSHA, &sealedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last seal: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, sealedAt)
	if err != nil {
		return nil, fmt.Errorf("last seal: bad sealed_at %q: %w", sealedAt, err)
	}
	rec.SealedAt = t
	return &rec, nil
}

// StationEvent is one appended station execution record.
type StationEvent struct {
	RunID      string
	Flow       string
	Station    string
	Outcome    string // "ok" or "error"
	Detail     string
	RecordedAt time.Time
}

// Station outcome values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RecordStation appends a station execution event.
func (j *Journal) RecordStation(ctx context.Context, ev StationEvent) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO station_events (run_id, flow, station, outcome, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		ev.RunID, ev.Flow, ev.Station, ev.Outcome, ev.Detail,
		ev.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record station: %w", err)
	}
	return nil
}

// StationEvents returns a run's station events in append order, optionally
// filtered by flow (empty flow means all flows).
func (j *Journal) StationEvents(ctx context.Context, runID, flow string) ([]StationEvent, error) {
	query := `
		SELECT run_id, flow, station, outcome, detail, recorded_at
		FROM station_events
		WHERE run_id = ?`
	args := []any{runID}
	if flow != "" {
		query += ` AND flow = ?`
		args = append(args, flow)
	}
	query += ` ORDER BY id`

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("station events: %w", err)
	}
	defer rows.Close()

	var events []StationEvent
	for rows.Next() {
		var ev StationEvent
		var recordedAt string
		if err := rows.Scan(&ev.RunID, &ev.Flow, &ev.Station, &ev.Outcome, &ev.Detail, &recordedAt); err != nil {
			return nil, fmt.Errorf("station events: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("station events: bad recorded_at %q: %w", recordedAt, err)
		}
		ev.RecordedAt = t
		events = append(events, ev)
	}
	return events, rows.Err()
}
