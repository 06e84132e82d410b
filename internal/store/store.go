// Package store persists finalized meeting insights and their event trail
// to SQLite. Writes happen once per session at finalize, in a single
// transaction; the read side serves post-meeting queries scoped by session
// or project.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// InsightKind discriminates the rows of the insights table.
type InsightKind string

const (
	KindQuestion InsightKind = "question"
	KindAction   InsightKind = "action"
)

// Priority is derived at write time, not stored by the handlers: anything
// the meeting left unresolved surfaces first in review.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Record is one persisted insight row.
type Record struct {
	ID        string
	SessionID string
	ProjectID string
	Kind      InsightKind
	Priority  Priority
	Status    string
	Payload   json.RawMessage // full question/action document
	CreatedAt time.Time
}

// Query filters post-meeting reads. Zero values mean "no filter"; Limit 0
// defaults to 100.
type Query struct {
	Kind     InsightKind
	Priority Priority
	Limit    int
	Offset   int
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and initializes the schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	// WAL mode allows readers to proceed while a finalize batch commits.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id   TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		started_at   INTEGER NOT NULL,
		finalized_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS insights (
		id         TEXT NOT NULL,
		session_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		kind       TEXT NOT NULL,
		priority   TEXT NOT NULL,
		status     TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, id),
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);

	CREATE TABLE IF NOT EXISTS events (
		event_seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		type       TEXT NOT NULL,
		at         INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id)
	);

	CREATE INDEX IF NOT EXISTS idx_insights_session ON insights(session_id);
	CREATE INDEX IF NOT EXISTS idx_insights_project ON insights(project_id);
	CREATE INDEX IF NOT EXISTS idx_insights_priority ON insights(priority);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveSession writes a finalized session with its insights and event trail
// in one transaction. Re-finalizing the same session replaces its rows.
func (s *Store) SaveSession(
	ctx context.Context,
	sessionID, projectID string,
	startedAt time.Time,
	questions []insight.Question,
	actions []insight.Action,
	events []insight.Event,
) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (session_id, project_id, started_at, finalized_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET finalized_at = excluded.finalized_at`,
		sessionID, projectID, startedAt.Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM insights WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear prior insights: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear prior events: %w", err)
	}

	insertInsight, err := tx.PrepareContext(ctx, `
		INSERT INTO insights (id, session_id, project_id, kind, priority, status, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insertInsight.Close()

	for _, q := range questions {
		payload, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to marshal question %s: %w", q.ID, err)
		}
		_, err = insertInsight.ExecContext(ctx,
			q.ID, sessionID, projectID, string(KindQuestion),
			string(questionPriority(q)), string(q.Status), string(payload), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
		}
	}

	for _, a := range actions {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal action %s: %w", a.ID, err)
		}
		_, err = insertInsight.ExecContext(ctx,
			a.ID, sessionID, projectID, string(KindAction),
			string(actionPriority(a)), string(a.Status), string(payload), now.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert action %s: %w", a.ID, err)
		}
	}

	insertEvent, err := tx.PrepareContext(ctx, `
		INSERT INTO events (session_id, type, at, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer insertEvent.Close()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		_, err = insertEvent.ExecContext(ctx, sessionID, string(e.Type), e.At.Unix(), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", sessionID, err)
	}
	return nil
}

// questionPriority: anything the meeting could not answer is high priority.
func questionPriority(q insight.Question) Priority {
	if q.Status == insight.StatusUnanswered {
		return PriorityHigh
	}
	return PriorityNormal
}

// actionPriority: an incomplete action item needs follow-up.
func actionPriority(a insight.Action) Priority {
	if a.Status != insight.ActionComplete {
		return PriorityHigh
	}
	return PriorityNormal
}

// QueryBySession returns insight rows for one session, newest first.
func (s *Store) QueryBySession(ctx context.Context, sessionID string, q Query) ([]Record, error) {
	return s.query(ctx, "session_id", sessionID, q)
}

// QueryByProject returns insight rows across all sessions of a project.
func (s *Store) QueryByProject(ctx context.Context, projectID string, q Query) ([]Record, error) {
	return s.query(ctx, "project_id", projectID, q)
}

func (s *Store) query(ctx context.Context, scopeCol, scopeVal string, q Query) ([]Record, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, session_id, project_id, kind, priority, status, payload, created_at
		FROM insights WHERE `)
	sb.WriteString(scopeCol)
	sb.WriteString(" = ?")
	args := []any{scopeVal}

	if q.Kind != "" {
		sb.WriteString(" AND kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Priority != "" {
		sb.WriteString(" AND priority = ?")
		args = append(args, string(q.Priority))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" ORDER BY created_at DESC, id LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var payload string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ProjectID, &r.Kind, &r.Priority, &r.Status, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight row: %w", err)
		}
		r.Payload = json.RawMessage(payload)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insight rows: %w", err)
	}
	return out, nil
}

// EventCount returns the number of persisted events for a session.
func (s *Store) EventCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
