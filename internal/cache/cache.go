package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one cached carrier response.
type Entry struct {
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

// Age reports how long ago the entry was created.
func (e Entry) Age() time.Duration {
	return time.Since(e.Created)
}

// Store holds raw carrier responses keyed by tracking URL. Entries for a
// URL are kept oldest first.
type Store interface {
	// GetFresh returns the newest entry for url no older than maxAge.
	// A maxAge of zero or less disables the age bound.
	GetFresh(ctx context.Context, url string, maxAge time.Duration) (Entry, bool)

	// Insert appends a new entry for url, evicting the oldest entry
	// when the per-URL bound is exceeded.
	Insert(ctx context.Context, url, text string)

	// Save persists the store between runs.
	Save(ctx context.Context) error

	// Modified reports whether the store changed since it was built.
	Modified() bool
}

// IOError reports a failed load or save of the backing storage.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s cache %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// DefaultPath returns the cache file location under the user cache dir.
func DefaultPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "packtrack", "cache.json"), nil
}

// freshest picks the newest entry no older than maxAge. Entries sharing
// a timestamp resolve to the last inserted one.
func freshest(entries []Entry, maxAge time.Duration) (Entry, bool) {
	var cutoff time.Time
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	var best Entry
	found := false
	for _, e := range entries {
		if maxAge > 0 && e.Created.Before(cutoff) {
			continue
		}
		if !found || !e.Created.Before(best.Created) {
			best = e
			found = true
		}
	}
	return best, found
}
