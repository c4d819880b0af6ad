package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	sessionFileName = "session.json"
	lockFileName    = "session.lock"
)

// FileStore is a Store backed by a single JSON document in a directory.
// Every operation takes a file lock, so several processes may share one
// directory. Writes are atomic (temp file then rename).
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a FileStore
// rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory holding the session file.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path() string { return filepath.Join(s.dir, sessionFileName) }

// withLock runs fn against the decoded document while holding both the
// in-process mutex and the file lock. If fn returns write=true the document
// is written back.
func (s *FileStore) withLock(fn func(doc map[string]json.RawMessage) (write bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := newFileLock(filepath.Join(s.dir, lockFileName))
	if err := fl.lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.unlock() }()

	doc, err := s.read()
	if err != nil {
		return err
	}
	write, err := fn(doc)
	if err != nil || !write {
		return err
	}
	return s.write(doc)
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal session file: %w", err)
	}
	return doc, nil
}

func (s *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}

	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *FileStore) Get(key string, v any) (bool, error) {
	var found bool
	err := s.withLock(func(doc map[string]json.RawMessage) (bool, error) {
		raw, ok := doc[key]
		if !ok {
			return false, nil
		}
		if err := decode(raw, v); err != nil {
			return false, fmt.Errorf("decode %q: %w", key, err)
		}
		found = true
		return false, nil
	})
	return found, err
}

// Set implements Store.
func (s *FileStore) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.withLock(func(doc map[string]json.RawMessage) (bool, error) {
		doc[key] = raw
		return true, nil
	})
}

// Delete implements Store.
func (s *FileStore) Delete(key string) error {
	return s.withLock(func(doc map[string]json.RawMessage) (bool, error) {
		if _, ok := doc[key]; !ok {
			return false, nil
		}
		delete(doc, key)
		return true, nil
	})
}

// Clear implements Store. The session file is removed; the directory
// and lock file remain. A corrupt session file is removed too.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl := newFileLock(filepath.Join(s.dir, lockFileName))
	if err := fl.lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fl.unlock() }()

	if err := os.Remove(s.path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
