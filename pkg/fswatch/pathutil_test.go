package fswatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

func TestListDirectoryEntries(t *testing.T) {
	directory := t.TempDir()
	for _, name := range []string{"a", "b"} {
		f, err := os.Create(filepath.Join(directory, name))
		assert.NoError(t, err)
		f.Close()
	}
	assert.NoError(t, os.Mkdir(filepath.Join(directory, "sub"), 0755))

	entries := ListDirectoryEntries(directory, logging.RootLogger)
	assert.ElementsMatch(t, []string{"a", "b", "sub"}, entries)
}

func TestListSubdirectories(t *testing.T) {
	directory := t.TempDir()
	f, err := os.Create(filepath.Join(directory, "a"))
	assert.NoError(t, err)
	f.Close()
	assert.NoError(t, os.Mkdir(filepath.Join(directory, "sub"), 0755))

	dirs := ListSubdirectories(directory, logging.RootLogger)
	assert.ElementsMatch(t, []string{"sub"}, dirs)
}

func TestListDirectoryEntriesMissing(t *testing.T) {
	entries := ListDirectoryEntries(filepath.Join(t.TempDir(), "missing"), logging.RootLogger)
	assert.Nil(t, entries)
}

func TestResolveSymlinkFallsBackOnMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	assert.Equal(t, path, ResolveSymlink(path, logging.RootLogger))
}

func TestStatPath(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "a")
	f, err := os.Create(path)
	assert.NoError(t, err)
	f.Close()

	info, ok := StatPath(path, true, logging.RootLogger)
	assert.True(t, ok)
	assert.False(t, info.Mode.IsDir())
}

func TestStatPathMissing(t *testing.T) {
	_, ok := StatPath(filepath.Join(t.TempDir(), "missing"), true, logging.RootLogger)
	assert.False(t, ok)
}
