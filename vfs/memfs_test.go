package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFSCreateReadWrite(t *testing.T) {
	fs := NewMemFS()
	root, err := fs.Lookup("/")
	require.NoError(t, err)

	child, err := root.Creat("hello.txt", 0o644)
	require.NoError(t, err)

	_, err = child.Write(0, []byte("hi"))
	require.NoError(t, err)

	buf := make([]byte, 2)
	n, err := child.Read(0, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "hi", string(buf))
}

func TestMemFSLookupMissing(t *testing.T) {
	fs := NewMemFS()
	_, err := fs.Lookup("/nope")
	assert.Error(t, err)
}

func TestMemFSReadDir(t *testing.T) {
	fs := NewMemFS()
	root, err := fs.Lookup("/")
	require.NoError(t, err)

	_, err = root.Creat("a", 0o644)
	require.NoError(t, err)
	_, err = root.Creat("b", 0o644)
	require.NoError(t, err)

	first, err := root.ReadDir(0)
	require.NoError(t, err)
	assert.NotNil(t, first)

	second, err := root.ReadDir(1)
	require.NoError(t, err)
	assert.NotNil(t, second)

	end, err := root.ReadDir(2)
	require.NoError(t, err)
	assert.Nil(t, end)
}

func TestMemFSUnlinkNonEmptyDir(t *testing.T) {
	fs := NewMemFS()
	root, err := fs.Lookup("/")
	require.NoError(t, err)

	dir, err := root.Creat("d", 0o040755)
	require.NoError(t, err)
	_, err = dir.Creat("f", 0o644)
	require.NoError(t, err)

	assert.ErrorIs(t, root.Unlink("d"), ErrNotEmpty)
}

func TestHasPermission(t *testing.T) {
	md := Metadata{UID: 5, GID: 5, Mode: 0o640}
	assert.True(t, HasPermission(md, 5, 5, 0b10), "owner should have read")
	assert.False(t, HasPermission(md, 6, 6, 0b100), "others should not have write")
	assert.True(t, HasPermission(md, 0, 0, 0b110), "root should always pass")
}
