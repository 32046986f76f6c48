package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridloom/lattice/internal/api/mcp"
)

func newFSRegistry(t *testing.T) (*mcp.Registry, string) {
	t.Helper()
	root := t.TempDir()
	reg := mcp.NewRegistry()
	NewFSTools(root).Register(reg)
	return reg, root
}

func TestWriteThenReadFile(t *testing.T) {
	reg, _ := newFSRegistry(t)

	var written WriteFileResult
	require.NoError(t, call(t, reg, "write_file", `{"path":"notes/hello.txt","content":"hello world"}`, &written))
	assert.Equal(t, 11, written.Written)

	var read ReadFileResult
	require.NoError(t, call(t, reg, "read_file", `{"path":"notes/hello.txt"}`, &read))
	assert.Equal(t, "hello world", read.Content)
	assert.Equal(t, int64(11), read.Size)
}

func TestReadMissingFileFails(t *testing.T) {
	reg, _ := newFSRegistry(t)

	var read ReadFileResult
	err := call(t, reg, "read_file", `{"path":"absent.txt"}`, &read)
	require.Error(t, err)
}

func TestListDirectory(t *testing.T) {
	reg, root := newFSRegistry(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	var list ListDirectoryResult
	require.NoError(t, call(t, reg, "list_directory", `{}`, &list))
	require.Len(t, list.Entries, 3)
	assert.Equal(t, "a.txt", list.Entries[0].Name)
	assert.Equal(t, "b.txt", list.Entries[1].Name)
	assert.Equal(t, "sub", list.Entries[2].Name)
	assert.True(t, list.Entries[2].IsDir)
}

func TestDeleteFile(t *testing.T) {
	reg, root := newFSRegistry(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.txt"), []byte("x"), 0o644))

	var deleted DeleteFileResult
	require.NoError(t, call(t, reg, "delete_file", `{"path":"gone.txt"}`, &deleted))
	assert.True(t, deleted.Deleted)

	_, err := os.Stat(filepath.Join(root, "gone.txt"))
	assert.True(t, os.IsNotExist(err))

	// Deleting again reports false, not an error.
	require.NoError(t, call(t, reg, "delete_file", `{"path":"gone.txt"}`, &deleted))
	assert.False(t, deleted.Deleted)
}

func TestPathEscapeRejected(t *testing.T) {
	reg, root := newFSRegistry(t)

	outside := filepath.Join(filepath.Dir(root), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	t.Cleanup(func() { _ = os.Remove(outside) })

	var read ReadFileResult
	err := call(t, reg, "read_file", `{"path":"../outside.txt"}`, &read)
	require.Error(t, err)
}
