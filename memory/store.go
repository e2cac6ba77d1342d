package memory

import (
	"context"
	"fmt"
	"strings"
)

// Store loads and saves the full History.
//
// Load returns an empty, non-nil History when nothing has been persisted yet,
// and a *CorruptStateError when persisted data cannot be decoded.
// Save overwrites everything atomically and returns a *PersistenceError on failure.
type Store interface {
	Load(ctx context.Context) (History, error)
	Save(ctx context.Context, h History) error
	Close() error
}

// CorruptStateError reports persisted state that exists but cannot be parsed.
type CorruptStateError struct {
	Source string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt history state in %s: %v", e.Source, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write of the History.
type PersistenceError struct {
	Source string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist history to %s: %v", e.Source, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type shapeError struct {
	user  string
	index int
	role  Role
}

func (e *shapeError) Error() string {
	return fmt.Sprintf("user %q message %d: unknown role %q", e.user, e.index, e.role)
}

// Kind names the available Store backends.
type Kind string

const (
	KindFile   Kind = "file"
	KindBolt   Kind = "bolt"
	KindSQLite Kind = "sqlite"
)

// Default database paths. Each backend has its own so switching CHATD_STORE
// never points one backend at another's file.
const (
	DefaultBoltPath   = "chat_history.bolt"
	DefaultSQLitePath = "chat_history.db"
)

// DefaultPath returns the path used by kind when none is configured.
func DefaultPath(kind Kind) string {
	switch kind {
	case KindBolt:
		return DefaultBoltPath
	case KindSQLite:
		return DefaultSQLitePath
	default:
		return DefaultFilePath
	}
}

// Open returns the Store backend of the given kind rooted at path. A blank
// path selects DefaultPath(kind).
func Open(kind Kind, path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath(kind)
	}
	switch kind {
	case KindFile, "":
		return NewFileStore(path)
	case KindBolt:
		return OpenBoltStore(path)
	case KindSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
