package walldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hueview/wallpaint/internal/monitoring"
	"github.com/hueview/wallpaint/internal/wall"
)

// Run is one recorded tracking session.
type Run struct {
	RunID       string `json:"run_id"`
	StartedAtNs int64  `json:"started_at_ns"`
	EndedAtNs   *int64 `json:"ended_at_ns,omitempty"`
	Note        string `json:"note,omitempty"`
}

// EventRecord is one persisted core event.
type EventRecord struct {
	EventID  int64  `json:"event_id"`
	RunID    string `json:"run_id"`
	AtNs     int64  `json:"at_ns"`
	Kind     string `json:"kind"`
	EntityID string `json:"entity_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// StartRun creates a new run row. If runID is empty a UUID is generated.
func (db *DB) StartRun(runID, note string) (*Run, error) {
	if runID == "" {
		runID = uuid.New().String()
	}
	run := &Run{
		RunID:       runID,
		StartedAtNs: time.Now().UnixNano(),
		Note:        note,
	}
	_, err := db.Exec(
		`INSERT INTO wall_runs (run_id, started_at_ns, note) VALUES (?, ?, ?)`,
		run.RunID, run.StartedAtNs, nullString(run.Note),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// EndRun stamps the run's end time.
func (db *DB) EndRun(runID string) error {
	res, err := db.Exec(
		`UPDATE wall_runs SET ended_at_ns = ? WHERE run_id = ?`,
		time.Now().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	var run Run
	var endedAtNs sql.NullInt64
	var note sql.NullString

	err := db.QueryRow(
		`SELECT run_id, started_at_ns, ended_at_ns, note FROM wall_runs WHERE run_id = ?`,
		runID,
	).Scan(&run.RunID, &run.StartedAtNs, &endedAtNs, &note)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if endedAtNs.Valid {
		v := endedAtNs.Int64
		run.EndedAtNs = &v
	}
	if note.Valid {
		run.Note = note.String
	}
	return &run, nil
}

// ListRuns retrieves all runs, newest first.
func (db *DB) ListRuns() ([]*Run, error) {
	rows, err := db.Query(
		`SELECT run_id, started_at_ns, ended_at_ns, note FROM wall_runs ORDER BY started_at_ns DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var endedAtNs sql.NullInt64
		var note sql.NullString
		if err := rows.Scan(&run.RunID, &run.StartedAtNs, &endedAtNs, &note); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if endedAtNs.Valid {
			v := endedAtNs.Int64
			run.EndedAtNs = &v
		}
		if note.Valid {
			run.Note = note.String
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

// RecordEvent persists one core event under the given run.
func (db *DB) RecordEvent(runID string, ev wall.Event) error {
	detail, entityID := eventDetail(ev)
	_, err := db.Exec(
		`INSERT INTO wall_events (run_id, at_ns, kind, entity_id, detail) VALUES (?, ?, ?, ?, ?)`,
		runID, ev.At.UnixNano(), string(ev.Kind), nullString(entityID), nullString(detail),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// eventDetail flattens the event payload to an entity id plus a JSON detail
// blob suitable for ad-hoc inspection.
func eventDetail(ev wall.Event) (detail, entityID string) {
	switch ev.Kind {
	case wall.EventEntityDetected, wall.EventEntityUpdated:
		if ev.Entity != nil {
			entityID = ev.Entity.ID
			if data, err := json.Marshal(ev.Entity); err == nil {
				detail = string(data)
			}
		}
	case wall.EventEntityRemoved:
		entityID = ev.EntityID
	case wall.EventSelectionChanged:
		entityID = ev.SelectedID
	case wall.EventSessionChanged:
		if ev.Session != nil {
			if data, err := json.Marshal(ev.Session); err == nil {
				detail = string(data)
			}
		}
	}
	return detail, entityID
}

// ListEvents retrieves up to limit events for a run in insertion order.
// limit <= 0 means no limit.
func (db *DB) ListEvents(runID string, limit int) ([]*EventRecord, error) {
	query := `SELECT event_id, run_id, at_ns, kind, entity_id, detail
	          FROM wall_events WHERE run_id = ? ORDER BY event_id`
	args := []interface{}{runID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var rec EventRecord
		var entityID, detail sql.NullString
		if err := rows.Scan(&rec.EventID, &rec.RunID, &rec.AtNs, &rec.Kind, &entityID, &detail); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if entityID.Valid {
			rec.EntityID = entityID.String
		}
		if detail.Valid {
			rec.Detail = detail.String
		}
		events = append(events, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events rows: %w", err)
	}
	return events, nil
}

// CountEventsByKind returns per-kind event counts for a run.
func (db *DB) CountEventsByKind(runID string) (map[string]int, error) {
	rows, err := db.Query(
		`SELECT kind, COUNT(*) FROM wall_events WHERE run_id = ? GROUP BY kind`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[kind] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count events rows: %w", err)
	}
	return counts, nil
}

// Recorder ties a run to an event sink that can be attached to the core.
type Recorder struct {
	db  *DB
	run *Run
}

// NewRecorder starts a run and returns a recorder for it.
func NewRecorder(db *DB, note string) (*Recorder, error) {
	run, err := db.StartRun("", note)
	if err != nil {
		return nil, err
	}
	return &Recorder{db: db, run: run}, nil
}

// RunID returns the identifier of the recorder's run.
func (r *Recorder) RunID() string { return r.run.RunID }

// Sink returns an event sink that persists every event it receives. Storage
// failures are logged, never propagated into the core's event delivery.
func (r *Recorder) Sink() wall.EventSink {
	return func(ev wall.Event) {
		if err := r.db.RecordEvent(r.run.RunID, ev); err != nil {
			monitoring.Logf("walldb: record event: %v", err)
		}
	}
}

// Close stamps the run's end time.
func (r *Recorder) Close() error {
	return r.db.EndRun(r.run.RunID)
}

// nullString converts empty strings to nil for SQL storage.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
