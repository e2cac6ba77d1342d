package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var historyBucket = []byte("history")

// BoltStore keeps the History in a bbolt database, one key per user id.
// Values are JSON arrays of messages, the same shape as a FileStore entry.
type BoltStore struct {
	path string
	db   *bolt.DB
}

// OpenBoltStore opens (or creates) the bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create bolt directory %s: %w", dir, err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db at %s: %w", path, err)
	}
	return &BoltStore{path: path, db: db}, nil
}

func (s *BoltStore) Load(_ context.Context) (History, error) {
	out := History{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(historyBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var log Log
			if err := json.Unmarshal(v, &log); err != nil {
				return &shapeKeyError{user: string(k), err: err}
			}
			out[string(k)] = log
			return nil
		})
	})
	if err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	if err := validate(out); err != nil {
		return nil, &CorruptStateError{Source: s.path, Err: err}
	}
	return out, nil
}

// Save replaces the bucket contents with h inside one transaction.
func (s *BoltStore) Save(_ context.Context, h History) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		// Recreate the bucket so it reflects h exactly.
		if tx.Bucket(historyBucket) != nil {
			if err := tx.DeleteBucket(historyBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(historyBucket)
		if err != nil {
			return err
		}
		for user, log := range h {
			if user == "" {
				return errors.New("empty user id")
			}
			if log == nil {
				log = Log{}
			}
			enc, err := json.Marshal(log)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(user), enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &PersistenceError{Source: s.path, Err: err}
	}
	return nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

type shapeKeyError struct {
	user string
	err  error
}

func (e *shapeKeyError) Error() string {
	return fmt.Sprintf("user %q: %v", e.user, e.err)
}

func (e *shapeKeyError) Unwrap() error { return e.err }

var _ Store = (*BoltStore)(nil)
