package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumarchive/chatscope/internal/store"
)

func TestWatchFileReportsWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "message_0.db")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	changed := make(chan struct{}, 8)
	w, err := store.WatchFile(target, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(target, []byte("v2"), 0o644))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification for a write to the watched file")
	}
}

func TestWatchFileIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "message_0.db")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	changed := make(chan struct{}, 8)
	w, err := store.WatchFile(target, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.db"), []byte("x"), 0o644))

	select {
	case <-changed:
		t.Fatal("sibling write must not notify")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "message_0.db")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))

	w, err := store.WatchFile(target, func() {})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
