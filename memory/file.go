package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultFilePath is the history document used when no path is configured.
const DefaultFilePath = "chat_history.json"

// fileMode is the permission of the history document after every Save.
const fileMode os.FileMode = 0o644

// FileStore keeps the History in a single JSON document:
//
//	{"<user id>": [{"role": "user", "content": "..."}, ...], ...}
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore backed by path. The file itself is created on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultFilePath
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(_ context.Context) (History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return History{}, nil
		}
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	// An empty document is treated like a missing one.
	if len(bytes.TrimSpace(b)) == 0 {
		return History{}, nil
	}
	var h History
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if err := validate(h); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if h == nil {
		h = History{}
	}
	return h, nil
}

// Save writes h to a temp file next to the target and renames it into place,
// so a failed write never leaves a truncated document behind.
func (s *FileStore) Save(_ context.Context, h History) error {
	if h == nil {
		h = History{}
	}
	b, err := json.MarshalIndent(h, "", " ")
	if err != nil {
		return &PersistenceError{Source: s.path, Err: fmt.Errorf("encode: %w", err)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Source: s.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Source: s.path, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpName := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistenceError{Source: s.path, Err: fmt.Errorf("%s: %w", op, err)}
	}

	// CreateTemp uses 0600.
	if err := tmp.Chmod(fileMode); err != nil {
		return fail("chmod temp file", err)
	}
	if _, err := tmp.Write(b); err != nil {
		return fail("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Source: s.path, Err: fmt.Errorf("close temp file: %w", err)}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &PersistenceError{Source: s.path, Err: fmt.Errorf("rename: %w", err)}
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
