package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS messages (
	user_id TEXT NOT NULL REFERENCES users(user_id),
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (user_id, seq)
);
`

// SQLiteStore keeps the History in a SQLite database. Every Save replaces
// all rows inside a single transaction.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// OpenSQLiteStore opens (or creates) a SQLite database at path, ensuring the
// parent directory and schema exist.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}
	// One connection keeps writes serialized in-process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema at %s: %w", path, err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (History, error) {
	out := History{}
	// Each query drains and closes its rows before the next one runs; the
	// pool holds a single connection.
	if err := s.loadUsers(ctx, out); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if err := s.loadMessages(ctx, out); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if err := validate(out); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) loadUsers(ctx context.Context, out History) error {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM users")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		out[id] = Log{}
	}
	return rows.Err()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, out History) error {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, role, content FROM messages ORDER BY user_id, seq")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, role, content string
		if err := rows.Scan(&id, &role, &content); err != nil {
			return err
		}
		out[id] = append(out[id], Message{Role: Role(role), Content: content})
	}
	return rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, h History) error {
	if err := s.replaceAll(ctx, h); err != nil {
		return &PersistenceError{Source: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) replaceAll(ctx context.Context, h History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}

	insUser, err := tx.PrepareContext(ctx, "INSERT INTO users (user_id) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare user insert: %w", err)
	}
	defer insUser.Close()
	insMsg, err := tx.PrepareContext(ctx, "INSERT INTO messages (user_id, seq, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare message insert: %w", err)
	}
	defer insMsg.Close()

	for user, log := range h {
		if _, err := insUser.ExecContext(ctx, user); err != nil {
			return fmt.Errorf("insert user %q: %w", user, err)
		}
		for i, m := range log {
			if _, err := insMsg.ExecContext(ctx, user, i, string(m.Role), m.Content); err != nil {
				return fmt.Errorf("insert message %d for %q: %w", i, user, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
