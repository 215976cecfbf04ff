package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/noah-isme/packtrack/internal/common"
)

// FileStore is a JSON file backed store. All contents live in memory;
// Save writes the whole file back in one go.
type FileStore struct {
	mu         sync.Mutex
	path       string
	contents   map[string][]Entry
	maxEntries int
	modified   bool
}

// NewFileStore loads the cache file at path. A missing file yields an
// empty store; an unreadable or corrupt one is an error. A maxEntries
// of zero or less leaves the per-URL history unbounded.
func NewFileStore(path string, maxEntries int) (*FileStore, error) {
	contents := map[string][]Entry{}
	if _, err := common.LoadJSON(path, &contents); err != nil {
		return nil, &IOError{Path: path, Op: "load", Err: err}
	}
	return &FileStore{path: path, contents: contents, maxEntries: maxEntries}, nil
}

func (s *FileStore) GetFresh(_ context.Context, url string, maxAge time.Duration) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return freshest(s.contents[url], maxAge)
}

func (s *FileStore) Insert(_ context.Context, url, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.contents[url], Entry{Text: text, Created: time.Now()})
	if s.maxEntries > 0 && len(entries) > s.maxEntries {
		entries = entries[1:]
	}
	s.contents[url] = entries
	s.modified = true
}

// Save writes the whole store to the cache file, creating parent
// directories as needed. Save never clears the modified flag; only
// rebuilding the store from disk resets it.
func (s *FileStore) Save(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := common.SaveJSON(s.path, s.contents); err != nil {
		return &IOError{Path: s.path, Op: "save", Err: err}
	}
	return nil
}

func (s *FileStore) Modified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modified
}

// Ping reports whether the directory holding the cache file is reachable.
// A directory that does not exist yet is fine; Save creates it.
func (s *FileStore) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(s.path))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return &IOError{Path: s.path, Op: "ping", Err: err}
}
