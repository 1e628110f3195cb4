package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "testing")
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	in := sample{Name: "alpha", Count: 7}
	require.NoError(t, s.Save("entry", in))

	var out sample
	hit, err := s.Load("entry", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)
}

func TestLoadMissingIsMiss(t *testing.T) {
	s := newStore(t)
	var out sample
	hit, err := s.Load("nope", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestLoadCorruptEntryIsMissAndRemoved(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("entry", sample{Name: "alpha"}))
	require.NoError(t, os.WriteFile(s.path("entry"), []byte("{not json"), 0o644))

	var out sample
	hit, err := s.Load("entry", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	_, statErr := os.Stat(s.path("entry"))
	assert.True(t, os.IsNotExist(statErr), "corrupt entry removed")
}

func TestSaveReplacesExisting(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("entry", sample{Count: 1}))
	require.NoError(t, s.Save("entry", sample{Count: 2}))

	var out sample
	hit, err := s.Load("entry", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, out.Count)
}

func TestDeleteMissingIsNoop(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Delete("never-saved"))
}

func TestListKeysSorted(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("zeta", sample{}))
	require.NoError(t, s.Save("alpha", sample{}))
	require.NoError(t, s.Save("mid", sample{}))
	// Stray non-entry files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("x"), 0o644))

	keys, err := s.ListKeys()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}

func TestClearAll(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("one", sample{}))
	require.NoError(t, s.Save("two", sample{}))
	require.NoError(t, s.ClearAll())

	keys, err := s.ListKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSanitizeKeys(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save("wxid_a/b:c", sample{Count: 3}))

	var out sample
	hit, err := s.Load("wxid_a/b:c", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, out.Count)
}
