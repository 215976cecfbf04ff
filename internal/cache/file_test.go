package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/packtrack/internal/cache"
)

func writeCacheFile(t *testing.T, path string, contents map[string][]cache.Entry) {
	t.Helper()
	data, err := json.Marshal(contents)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readCacheFile(t *testing.T, path string) map[string][]cache.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	contents := map[string][]cache.Entry{}
	require.NoError(t, json.Unmarshal(data, &contents))
	return contents
}

func texts(entries []cache.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Text)
	}
	return out
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "cache.json"), 10)
	require.NoError(t, err)

	_, ok := store.GetFresh(context.Background(), "url", 0)
	require.False(t, ok)
	require.False(t, store.Modified())
}

func TestFileStoreCorruptFileErrors(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := cache.NewFileStore(path, 10)
	var ioErr *cache.IOError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, path, ioErr.Path)
}

func TestFileStoreInsertEvictsOldest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.json")
	store, err := cache.NewFileStore(path, 2)
	require.NoError(t, err)

	for _, text := range []string{"0", "1", "2", "3"} {
		store.Insert(ctx, "url", text)
	}
	require.NoError(t, store.Save(ctx))

	contents := readCacheFile(t, path)
	require.Equal(t, []string{"2", "3"}, texts(contents["url"]))
}

func TestFileStoreInsertUnbounded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.json")
	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)

	for _, text := range []string{"0", "1", "2", "3"} {
		store.Insert(ctx, "url", text)
	}
	require.NoError(t, store.Save(ctx))

	contents := readCacheFile(t, path)
	require.Equal(t, []string{"0", "1", "2", "3"}, texts(contents["url"]))
}

func TestFileStoreGetFresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Now()
	path := filepath.Join(t.TempDir(), "cache.json")
	writeCacheFile(t, path, map[string][]cache.Entry{
		"url": {
			{Text: "20s ago", Created: now.Add(-20 * time.Second)},
			{Text: "5s ago", Created: now.Add(-5 * time.Second)},
			{Text: "10s ago", Created: now.Add(-10 * time.Second)},
		},
	})

	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)

	entry, ok := store.GetFresh(ctx, "url", 10*time.Second)
	require.True(t, ok)
	require.Equal(t, "5s ago", entry.Text)

	entry, ok = store.GetFresh(ctx, "url", 0)
	require.True(t, ok, "zero max age means unbounded")
	require.Equal(t, "5s ago", entry.Text)

	_, ok = store.GetFresh(ctx, "url", 3*time.Second)
	require.False(t, ok, "no entry young enough")

	_, ok = store.GetFresh(ctx, "unknown", 0)
	require.False(t, ok)
}

func TestFileStoreGetFreshTieBreaksOnLastInserted(t *testing.T) {
	t.Parallel()

	created := time.Now().Add(-time.Minute)
	path := filepath.Join(t.TempDir(), "cache.json")
	writeCacheFile(t, path, map[string][]cache.Entry{
		"url": {
			{Text: "first", Created: created},
			{Text: "second", Created: created},
		},
	})

	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)

	entry, ok := store.GetFresh(context.Background(), "url", 0)
	require.True(t, ok)
	require.Equal(t, "second", entry.Text)
}

func TestFileStoreModifiedStickyAcrossSave(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.json")
	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)
	require.False(t, store.Modified())

	store.Insert(ctx, "url", "text")
	require.True(t, store.Modified())

	require.NoError(t, store.Save(ctx))
	require.True(t, store.Modified(), "save must not clear the flag")

	reloaded, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)
	require.False(t, reloaded.Modified())
}

func TestFileStoreSaveCreatesParentDirs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "cache.json")
	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)

	store.Insert(ctx, "url", "text")
	require.NoError(t, store.Save(ctx))

	reloaded, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)
	entry, ok := reloaded.GetFresh(ctx, "url", 0)
	require.True(t, ok)
	require.Equal(t, "text", entry.Text)
}

func TestFileStoreSaveRoundTripIsStable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cache.json")
	store, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)
	store.Insert(ctx, "url-a", "payload a")
	store.Insert(ctx, "url-b", "payload b")
	require.NoError(t, store.Save(ctx))

	first, err := os.ReadFile(path)
	require.NoError(t, err)

	reloaded, err := cache.NewFileStore(path, 0)
	require.NoError(t, err)
	require.NoError(t, reloaded.Save(ctx))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}
