package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob")

	f, err := Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())

	info, err := Default.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	require.NoError(t, Default.Rename(path, path+".new"))
	require.NoError(t, Default.Remove(path+".new"))
}

func TestFaultyFSWriteLimit(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("limited", Fault{FailAfterBytes: 4})

	f, err := ffs.OpenFile(filepath.Join(dir, "limited.bin"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("1234"))
	require.NoError(t, err)
	_, err = f.Write([]byte("5"))
	assert.Error(t, err)
}

func TestFaultyFSRename(t *testing.T) {
	dir := t.TempDir()
	injected := errors.New("boom")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("target", Fault{FailOnRename: true, Err: injected})

	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	err := ffs.Rename(src, filepath.Join(dir, "target"))
	assert.ErrorIs(t, err, injected)

	// Unmatched renames pass through.
	require.NoError(t, ffs.Rename(src, filepath.Join(dir, "other")))
}

func TestFaultyFSSyncAndClose(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("s.bin", Fault{FailAfterBytes: -1, FailOnSync: true})
	ffs.AddRule("c.bin", Fault{FailAfterBytes: -1, FailOnClose: true})

	sf, err := ffs.OpenFile(filepath.Join(dir, "s.bin"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	assert.Error(t, sf.Sync())
	require.NoError(t, sf.Close())

	cf, err := ffs.OpenFile(filepath.Join(dir, "c.bin"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	assert.Error(t, cf.Close())
}
