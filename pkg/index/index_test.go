package index

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreIndexPersists(t *testing.T) {
	dir := t.TempDir()

	idx, err := New(dir)
	require.NoError(t, err)
	assert.Empty(t, idx.Get("Task Manager"))

	idx.Set("Task Manager", "cal-1")
	idx.Set("Work", "cal-2")
	require.NoError(t, idx.Save())

	reloaded, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "cal-1", reloaded.Get("Task Manager"))
	assert.Equal(t, "cal-2", reloaded.Get("Work"))

	reloaded.Remove("Work")
	require.NoError(t, reloaded.Save())

	again, err := New(dir)
	require.NoError(t, err)
	assert.Empty(t, again.Get("Work"))
	assert.Equal(t, "cal-1", again.Get("Task Manager"))
}

func TestStoreIndexSaveSkipsWhenClean(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, idx.Save())
	_, err = os.Stat(idx.Path)
	assert.True(t, os.IsNotExist(err), "clean index must not write a file")

	idx.Set("a", "1")
	require.NoError(t, idx.Save())
	idx.Set("a", "1")
	assert.False(t, idx.dirty, "setting the same value must not dirty the index")
}

func TestStoreIndexCorruptFile(t *testing.T) {
	dir := t.TempDir()
	idx, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(idx.Path, []byte("{broken"), 0600))

	_, err = New(dir)
	assert.Error(t, err)
}
