// Package urls manages the plain-text list of tracking URLs, one per line.
package urls

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is the URL list backed by a text file. Order is preserved; blank
// lines are skipped on load.
type File struct {
	Path string
}

// Load reads every non-blank line. A missing file is an empty list.
func (f *File) Load() ([]string, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read url list %s: %w", f.Path, err)
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// Add appends url to the list. An exact duplicate is a no-op and reports
// false.
func (f *File) Add(url string) (bool, error) {
	list, err := f.Load()
	if err != nil {
		return false, err
	}
	for _, existing := range list {
		if existing == url {
			return false, nil
		}
	}
	list = append(list, url)
	if err := f.Save(list); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes every URL containing substr and returns the removed ones
// in their original order.
func (f *File) Remove(substr string) ([]string, error) {
	list, err := f.Load()
	if err != nil {
		return nil, err
	}
	var kept, removed []string
	for _, url := range list {
		if strings.Contains(url, substr) {
			removed = append(removed, url)
			continue
		}
		kept = append(kept, url)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := f.Save(kept); err != nil {
		return nil, err
	}
	return removed, nil
}

// Save rewrites the whole file, creating parent directories as needed.
func (f *File) Save(list []string) error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create url list dir %s: %w", dir, err)
		}
	}
	var b strings.Builder
	for _, url := range list {
		b.WriteString(url)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(f.Path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write url list %s: %w", f.Path, err)
	}
	return nil
}
