package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (app_name, user_id, session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(app_name, user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			run_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (app_name, user_id, session_id) REFERENCES sessions(app_name, user_id, session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(app_name, user_id, session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			app_name TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(app_name, user_id, session_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Columns added after the first release.
	if err := s.ensureColumn("messages", "author", "ALTER TABLE messages ADD COLUMN author TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("runs", "target_agent", "ALTER TABLE runs ADD COLUMN target_agent TEXT"); err != nil {
		return err
	}
	if err := s.ensureColumn("events", "author", "ALTER TABLE events ADD COLUMN author TEXT"); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.State == nil {
		session.State = domain.State{}
	}
	state, err := json.Marshal(session.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (app_name, user_id, session_id, state, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.AppName, session.UserID, session.ID, string(state), session.CreatedAt, session.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("session %s: %w", session.Key(), ErrAlreadyExists)
		}
		return err
	}
	session.LastUpdateTime = domain.Timestamp(session.CreatedAt)
	return nil
}

// GetSession retrieves a session by key.
func (s *SQLiteStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	session := domain.Session{AppName: key.AppName, UserID: key.UserID, ID: key.SessionID}
	var state string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT state, created_at, updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&state, &session.CreatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(state), &session.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if session.State == nil {
		session.State = domain.State{}
	}
	session.LastUpdateTime = domain.Timestamp(updatedAt)
	return &session, nil
}

// ListSessions lists a user's sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, appName, userID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, state, created_at, updated_at FROM sessions WHERE app_name = ? AND user_id = ? ORDER BY updated_at DESC`,
		appName, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		session := domain.Session{AppName: appName, UserID: userID}
		var state string
		var updatedAt time.Time
		if err := rows.Scan(&session.ID, &state, &session.CreatedAt, &updatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(state), &session.State); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		session.LastUpdateTime = domain.Timestamp(updatedAt)
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSessionState replaces the stored state of a session.
func (s *SQLiteStore) UpdateSessionState(ctx context.Context, key domain.SessionKey, state domain.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		string(data), time.Now(), key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return err
	}
	return expectRow(res, "session "+key.String())
}

// DeleteSession removes a session and its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return err
	}
	return expectRow(res, "session "+key.String())
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, key domain.SessionKey, message *domain.Message) error {
	var runID, author sql.NullString
	if message.RunID != "" {
		runID = sql.NullString{String: message.RunID, Valid: true}
	}
	if message.Author != "" {
		author = sql.NullString{String: message.Author, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, app_name, user_id, session_id, run_id, role, author, content, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, key.AppName, key.UserID, key.SessionID, runID, message.Role, author, message.Content, message.CreatedAt)
	return err
}

// GetMessages returns the most recent messages of a session in chronological order.
func (s *SQLiteStore) GetMessages(ctx context.Context, key domain.SessionKey, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, session_id, run_id, role, author, content, created_at FROM messages
		WHERE app_name = ? AND user_id = ? AND session_id = ? ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		var runID, author sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &runID, &msg.Role, &author, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.RunID = runID.String
		msg.Author = author.String
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateRun creates a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, app_name, user_id, session_id, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.AppName, run.UserID, run.SessionID, run.Status, run.StartedAt)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var target, errData sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, app_name, user_id, session_id, status, target_agent, started_at, ended_at, error FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.AppName, &run.UserID, &run.SessionID, &run.Status, &target, &run.StartedAt, &endedAt, &errData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	run.TargetAgent = target.String
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// UpdateRunTarget records the specialist chosen for a run.
func (s *SQLiteStore) UpdateRunTarget(ctx context.Context, runID string, target domain.TargetAgent) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET target_agent = ? WHERE run_id = ?`,
		string(target), runID)
	return err
}

// UpdateRunCompleted updates a run to completed state.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	now := time.Now()
	var errStr sql.NullString
	if errData != nil {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		status, now, errStr, runID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.TraceEvent) error {
	var payload, author sql.NullString
	if event.Payload != nil {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	if event.Author != "" {
		author = sql.NullString{String: event.Author, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, author, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, author, payload)
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.TraceEvent, error) {
	query := `SELECT event_id, run_id, ts, type, author, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, event_id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.TraceEvent
	for rows.Next() {
		var event domain.TraceEvent
		var author, payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &author, &payload); err != nil {
			return nil, err
		}
		event.Author = author.String
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
