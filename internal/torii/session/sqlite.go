package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bdobrica/Torii/internal/torii/ops"
)

// SQLiteStore persists sessions to a local SQLite database so a restarted
// transport resumes conversations where they left off. Approval requests are
// deliberately not persisted here; the ledger is volatile by design and a
// restored session whose pending request no longer exists simply gets a
// "not found" reply.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	// SQLite is single-writer by design. A single shared connection lets
	// database/sql serialize concurrent callers instead of them fighting
	// over write locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			messages            TEXT NOT NULL,
			pending_request_id  TEXT NOT NULL DEFAULT '',
			last_operation_kind TEXT NOT NULL DEFAULT '',
			started_at          TEXT NOT NULL,
			last_msg_at         TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Session, error) {
	var (
		messagesJSON, kind   string
		startedAt, lastMsgAt string
		sess                 = &Session{ID: id}
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT messages, pending_request_id, last_operation_kind, started_at, last_msg_at
		FROM sessions WHERE id = ?
	`, id).Scan(&messagesJSON, &sess.PendingRequestID, &kind, &startedAt, &lastMsgAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode session %s messages: %w", id, err)
	}
	sess.LastOperationKind = ops.Kind(kind)
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("decode session %s started_at: %w", id, err)
	}
	if sess.LastMsgAt, err = time.Parse(time.RFC3339Nano, lastMsgAt); err != nil {
		return nil, fmt.Errorf("decode session %s last_msg_at: %w", id, err)
	}
	return sess, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, sess *Session) error {
	messagesJSON, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode session %s messages: %w", sess.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions
			(id, messages, pending_request_id, last_operation_kind, started_at, last_msg_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		string(messagesJSON),
		sess.PendingRequestID,
		string(sess.LastOperationKind),
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
		sess.LastMsgAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}
