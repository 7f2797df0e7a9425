package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet_RoundTrip(t *testing.T) {
	s := New(t.TempDir())

	err := s.Put("r1", "build", "summary.txt", []byte("status: ok\n"))
	require.NoError(t, err)

	data, err := s.Get("r1", "build", "summary.txt")
	require.NoError(t, err)
	assert.Equal(t, "status: ok\n", string(data))
}

func TestPut_Overwrite(t *testing.T) {
	s := New(t.TempDir())

	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("first")))
	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("second")))

	data, err := s.Get("r1", "build", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestPut_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("data")))

	entries, err := os.ReadDir(filepath.Join(root, "r1", "build"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())
}

func TestGet_Missing_IsNotFound(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Get("r1", "build", "nope.txt")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsIOFailure(err))
}

func TestGet_MissingRun_IsNotFound(t *testing.T) {
	s := New(t.TempDir())

	_, err := s.Get("never-created", "build", "a.txt")
	assert.True(t, IsNotFound(err))
}

func TestExists(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("x")))

	ok, err := s.Exists("r1", "build", "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists("r1", "build", "b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_StableAcrossRewrites(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("content")))

	h1, err := s.Hash("r1", "build", "a.txt")
	require.NoError(t, err)

	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("content")))
	h2, err := s.Hash("r1", "build", "a.txt")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestList_SortedAndSkipsTemp(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.NoError(t, s.Put("r1", "build", "b.txt", []byte("x")))
	require.NoError(t, s.Put("r1", "build", "a.txt", []byte("x")))

	// A stray temp file from a crashed write must stay invisible.
	stray := filepath.Join(root, "r1", "build", "c.txt.123.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("partial"), 0o644))

	names, err := s.List("r1", "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
}

func TestList_MissingFlowDir_Empty(t *testing.T) {
	s := New(t.TempDir())

	names, err := s.List("r1", "build")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestValidateName_RejectsTraversal(t *testing.T) {
	s := New(t.TempDir())

	err := s.Put("..", "build", "a.txt", []byte("x"))
	assert.Error(t, err)

	err = s.Put("r1", "build", "../escape.txt", []byte("x"))
	assert.Error(t, err)

	_, err = s.Get("r1", "", "a.txt")
	assert.Error(t, err)
}
