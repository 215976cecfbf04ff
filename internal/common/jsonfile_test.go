package common_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/packtrack/internal/common"
)

func TestLoadJSONMissingFile(t *testing.T) {
	t.Parallel()

	var v map[string]string
	found, err := common.LoadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)
	require.NoError(t, err)
	require.False(t, found)
}

func TestLoadJSONCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	var v map[string]string
	found, err := common.LoadJSON(path, &v)
	require.True(t, found)
	require.Error(t, err)
}

func TestSaveJSONRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	in := map[string][]int{"a": {1, 2, 3}}
	require.NoError(t, common.SaveJSON(path, in))

	var out map[string][]int
	found, err := common.LoadJSON(path, &out)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, in, out)
}
