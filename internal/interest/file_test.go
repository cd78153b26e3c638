package interest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	backend, err := NewFileBackend(filepath.Join(t.TempDir(), "hashed-interests.json"))
	require.NoError(t, err)

	doc, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, doc)
}

func TestFileBackendSaveReplacesWholeDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "hashed-interests.json")
	backend, err := NewFileBackend(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Save(ctx, Document{"A": {"m1": "x"}, "B": {"m1": "y"}}))
	require.NoError(t, backend.Save(ctx, Document{"B": {"m1": "z"}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"B":{"m1":"z"}}`, string(raw))
	require.True(t, strings.Contains(string(raw), "\n    \"B\""), "expected 4-space indented document, got %s", raw)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "tmp file must not survive a save")
}

func TestFileBackendCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hashed-interests.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	backend, err := NewFileBackend(path)
	require.NoError(t, err)

	_, err = backend.Load(context.Background())
	require.Error(t, err)
}

func TestFileBackendSaveFailsInMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(filepath.Join(dir, "sub", "hashed-interests.json"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))

	store := NewStore(backend)
	err = store.Merge(context.Background(), "A", fullRecord("a"))

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
}
