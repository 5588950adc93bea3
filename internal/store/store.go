// Package store is the client-side state cache: a file-backed JSON
// key-value store with two explicit scopes. The durable scope outlives
// runs (completed wizard data, active job records); the session scope
// holds in-progress conversation identifiers and is cleared on reset.
//
// Writes are last-writer-wins across concurrent processes sharing the
// same state directory; callers that need isolation tag records with an
// owner id instead of relying on absence of a record.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Scope is one directory of JSON blobs, one file per key.
type Scope struct {
	mu  sync.RWMutex
	dir string
	log *zap.Logger
}

func newScope(dir string, log *zap.Logger) (*Scope, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("scope directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scope dir %s: %w", dir, err)
	}
	return &Scope{dir: dir, log: log}, nil
}

func (s *Scope) filePath(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the value stored under key into out. It returns false when
// the key is absent or the stored blob cannot be decoded.
func (s *Scope) Get(key string, out interface{}) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filePath(key))
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.log.Warn("discarding unreadable state entry",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key, replacing any previous value.
func (s *Scope) Set(key string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.filePath(key)
	tmp, err := os.CreateTemp(s.dir, key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Delete removes key. Missing keys are not an error.
func (s *Scope) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.filePath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry in the scope.
func (s *Scope) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("list scope dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Store bundles the durable and session scopes.
type Store struct {
	durable *Scope
	session *Scope
}

// Open prepares both scopes under their directories, creating them when
// missing.
func Open(durableDir, sessionDir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	durable, err := newScope(durableDir, log)
	if err != nil {
		return nil, err
	}
	session, err := newScope(sessionDir, log)
	if err != nil {
		return nil, err
	}
	return &Store{durable: durable, session: session}, nil
}

func (st *Store) Durable() *Scope { return st.durable }
func (st *Store) Session() *Scope { return st.session }

// Reset wipes both scopes. Used on logout or explicit start-over.
func (st *Store) Reset() error {
	if err := st.session.Clear(); err != nil {
		return err
	}
	return st.durable.Clear()
}
