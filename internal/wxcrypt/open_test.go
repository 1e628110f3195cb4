package wxcrypt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAccountStore lays out one account's encrypted storage subtree under
// root and returns the path of its primary message database.
func writeAccountStore(t *testing.T, root, account string, data []byte) string {
	t.Helper()
	msgDir := filepath.Join(root, account, storageDirName, messageSubdir)
	require.NoError(t, os.MkdirAll(msgDir, 0o755))
	primary := filepath.Join(msgDir, "message_0.db")
	require.NoError(t, os.WriteFile(primary, data, 0o644))
	return primary
}

func TestResolveAccountSingle(t *testing.T) {
	root := t.TempDir()
	writeAccountStore(t, root, "wxid_alpha", make([]byte, PageSize))
	// Directories without the storage subtree never count as accounts.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "applet_cache"), 0o755))

	account, err := resolveAccount(root, "")
	require.NoError(t, err)
	assert.Equal(t, "wxid_alpha", account)
}

func TestResolveAccountAmbiguous(t *testing.T) {
	root := t.TempDir()
	writeAccountStore(t, root, "wxid_alpha", make([]byte, PageSize))
	writeAccountStore(t, root, "wxid_beta", make([]byte, PageSize))

	_, err := resolveAccount(root, "")
	require.ErrorIs(t, err, ErrAccountAmbiguous)

	account, err := resolveAccount(root, "wxid_beta")
	require.NoError(t, err)
	assert.Equal(t, "wxid_beta", account)
}

func TestResolveAccountNotFound(t *testing.T) {
	root := t.TempDir()

	_, err := resolveAccount(root, "")
	require.ErrorIs(t, err, ErrAccountNotFound)

	writeAccountStore(t, root, "wxid_alpha", make([]byte, PageSize))
	_, err = resolveAccount(root, "wxid_gone")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSmallestDatabase(t *testing.T) {
	root := t.TempDir()
	writeAccountStore(t, root, "wxid_alpha", make([]byte, PageSize*4))
	storageDir := filepath.Join(root, "wxid_alpha", storageDirName)

	sessionDir := filepath.Join(storageDir, sessionSubdir)
	require.NoError(t, os.MkdirAll(sessionDir, 0o755))
	small := filepath.Join(sessionDir, "session.db")
	require.NoError(t, os.WriteFile(small, make([]byte, PageSize), 0o644))

	// Below one page cannot be probed and is skipped.
	require.NoError(t, os.WriteFile(filepath.Join(sessionDir, "stub.db"), make([]byte, 100), 0o644))

	got, err := smallestDatabase(storageDir)
	require.NoError(t, err)
	assert.Equal(t, small, got)
}

func TestFindSampleDatabase(t *testing.T) {
	root := t.TempDir()
	primary := writeAccountStore(t, root, "wxid_alpha", make([]byte, PageSize))

	got, err := FindSampleDatabase(root, "")
	require.NoError(t, err)
	assert.Equal(t, primary, got)
}

func TestOpenStoreWrongKey(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 2)
	root := t.TempDir()
	writeAccountStore(t, root, "wxid_alpha", enc)

	wrong := testKey()
	wrong[5] ^= 0xff
	_, err := OpenStore(context.Background(), OpenOptions{
		Root:    root,
		Key:     wrong,
		Mode:    ModeBackup,
		WorkDir: t.TempDir(),
	})
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenStoreRequiresWorkDir(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 2)
	root := t.TempDir()
	writeAccountStore(t, root, "wxid_alpha", enc)

	_, err := OpenStore(context.Background(), OpenOptions{Root: root, Key: key, Mode: ModeBackup})
	require.Error(t, err)
}

func TestOpenDecryptedEmptyDir(t *testing.T) {
	_, err := OpenDecrypted(t.TempDir(), ModeBackup)
	require.ErrorIs(t, err, ErrStoreCorrupt)
}

func TestUpToDate(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	require.NoError(t, os.WriteFile(src, []byte("encrypted"), 0o644))

	assert.False(t, upToDate(src, dst), "missing copy is never current")

	require.NoError(t, os.WriteFile(dst, []byte("decrypted"), 0o644))
	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dst, older, older))
	assert.False(t, upToDate(src, dst), "stale copy")

	newer := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(dst, newer, newer))
	assert.True(t, upToDate(src, dst))
}
