package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/AltairaLabs/diagram-studio/internal/session"
)

// SessionStore implements session.Store on a SQLite database. Each session
// is one row holding the JSON-encoded record plus the columns needed for
// version checks and cleanup.
type SessionStore struct {
	db   *sql.DB
	path string
}

var _ session.Store = (*SessionStore)(nil)

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*SessionStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SessionStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SessionStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		last_active DATETIME NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SessionStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Get loads one session.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var (
		version int64
		record  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, record_json FROM sessions WHERE id = ?`, id,
	).Scan(&version, &record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return decode(record, version)
}

// Put inserts a new session (Version 0) or overwrites an existing one whose
// stored version equals sess.Version.
func (s *SessionStore) Put(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session must have an ID")
	}

	next := sess.Version + 1
	record, err := encode(sess, next)
	if err != nil {
		return err
	}

	if sess.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO sessions (id, version, created_at, last_active, record_json)
			VALUES (?, ?, ?, ?, ?)
		`, sess.ID, next, sess.CreatedAt.UTC(), sess.LastActive.UTC(), record)
		if isConstraint(err) {
			return fmt.Errorf("%w: %s already exists", session.ErrConflict, sess.ID)
		}
		if err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}
		sess.Version = next
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET version = ?, last_active = ?, record_json = ?
		WHERE id = ? AND version = ?
	`, next, sess.LastActive.UTC(), record, sess.ID, sess.Version)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s moved past version %d", session.ErrConflict, sess.ID, sess.Version)
	}
	sess.Version = next
	return nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// List loads every session, oldest first.
func (s *SessionStore) List(ctx context.Context) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, record_json FROM sessions ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var (
			version int64
			record  string
		)
		if err := rows.Scan(&version, &record); err != nil {
			return nil, err
		}
		sess, err := decode(record, version)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// IdleSince returns the ids of sessions not touched since cutoff.
func (s *SessionStore) IdleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE last_active < ? ORDER BY last_active ASC`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encode(sess *session.Session, version int64) (string, error) {
	c := *sess
	c.Version = version
	b, err := json.Marshal(&c)
	if err != nil {
		return "", fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	return string(b), nil
}

func decode(record string, version int64) (*session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal([]byte(record), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess.Version = version
	return &sess, nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
