package wxcrypt

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKey is a fixed 32-byte raw key used across the codec tests.
func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i*5 + 17)
	}
	return key
}

// plainPage builds a deterministic plaintext page. Page 0 starts with the
// standard SQLite header, the way a real database does.
func plainPage(pageNo int) []byte {
	page := make([]byte, PageSize)
	for i := range page {
		page[i] = byte((pageNo*131 + i*7) % 251)
	}
	if pageNo == 0 {
		copy(page, sqliteHeader)
	}
	return page
}

// encryptPage is the inverse of decryptPage: it encrypts the page body with
// AES-256-CBC and fills the reserve region with the IV and HMAC-SHA512 digest.
func encryptPage(t *testing.T, keys pageKeys, plain, salt []byte, pageNo int64) []byte {
	t.Helper()
	out := make([]byte, PageSize)
	copy(out, plain)

	offset := 0
	if pageNo == 0 {
		offset = SaltSize
		copy(out[:SaltSize], salt)
	}

	iv := out[pageDataEnd : pageDataEnd+ivSize]
	for i := range iv {
		iv[i] = byte(int64(i)*3 + pageNo + 1)
	}

	block, err := aes.NewCipher(keys.enc)
	require.NoError(t, err)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[offset:pageDataEnd], out[offset:pageDataEnd])

	h := hmac.New(sha512.New, keys.mac)
	h.Write(out[offset : pageDataEnd+ivSize])
	var no [4]byte
	binary.LittleEndian.PutUint32(no[:], uint32(pageNo+1))
	h.Write(no[:])
	copy(out[pageDataEnd+ivSize:], h.Sum(nil))
	return out
}

// buildEncryptedDB produces an encrypted database image and the plaintext
// image DecryptFile is expected to emit for it.
func buildEncryptedDB(t *testing.T, key []byte, pages int) (enc, want []byte) {
	t.Helper()
	salt := make([]byte, SaltSize)
	for i := range salt {
		salt[i] = byte(i + 101)
	}
	keys := deriveKeys(key, salt)

	for pageNo := 0; pageNo < pages; pageNo++ {
		plain := plainPage(pageNo)
		cipherPage := encryptPage(t, keys, plain, salt, int64(pageNo))

		expected := make([]byte, PageSize)
		copy(expected, plain)
		// The reserve region is carried through verbatim.
		copy(expected[pageDataEnd:], cipherPage[pageDataEnd:])

		enc = append(enc, cipherPage...)
		want = append(want, expected...)
	}
	return enc, want
}

func writeTempDB(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.db")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	_, err = ParseKey("0011")
	assert.Error(t, err)

	_, err = ParseKey("zz112233445566778899aabbccddeeff00112233445566778899aabbccddeezz")
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 3)
	path := writeTempDB(t, enc)

	ok, err := ValidateKey(path, key)
	require.NoError(t, err)
	assert.True(t, ok)

	wrong := testKey()
	wrong[0] ^= 0xff
	ok, err = ValidateKey(path, wrong)
	require.NoError(t, err, "a wrong key is a negative result, not an error")
	assert.False(t, ok)
}

func TestValidateKeyBadInput(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 1)
	path := writeTempDB(t, enc)

	_, err := ValidateKey(path, key[:16])
	assert.Error(t, err, "short key")

	short := writeTempDB(t, enc[:PageSize/2])
	_, err = ValidateKey(short, key)
	assert.Error(t, err, "file smaller than one page")

	_, err = ValidateKey(filepath.Join(t.TempDir(), "missing.db"), key)
	assert.Error(t, err)
}

func TestValidateKeyTamperedPage(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 1)
	enc[SaltSize+10] ^= 0x01

	ok, err := ValidateKey(writeTempDB(t, enc), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecryptFileRoundTrip(t *testing.T) {
	key := testKey()
	enc, want := buildEncryptedDB(t, key, 5)
	src := writeTempDB(t, enc)
	dst := filepath.Join(t.TempDir(), "plain.db")

	require.NoError(t, DecryptFile(context.Background(), src, dst, key, nil))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	assert.True(t, bytes.HasPrefix(got, sqliteHeader), "decrypted header")
	assert.Equal(t, want, got)
}

func TestDecryptFileZeroPagePassthrough(t *testing.T) {
	key := testKey()
	enc, want := buildEncryptedDB(t, key, 2)
	// Unallocated tail pages are all zero on disk and pass through untouched.
	zero := make([]byte, PageSize)
	enc = append(enc, zero...)
	want = append(want, zero...)

	src := writeTempDB(t, enc)
	dst := filepath.Join(t.TempDir(), "plain.db")
	require.NoError(t, DecryptFile(context.Background(), src, dst, key, nil))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecryptFileWrongKey(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 2)
	src := writeTempDB(t, enc)
	dst := filepath.Join(t.TempDir(), "plain.db")

	wrong := testKey()
	wrong[31] ^= 0xff
	err := DecryptFile(context.Background(), src, dst, wrong, nil)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "no partial output on failure")
}

func TestDecryptFileUnalignedSource(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 1)
	src := writeTempDB(t, append(enc, 0x42))
	dst := filepath.Join(t.TempDir(), "plain.db")

	err := DecryptFile(context.Background(), src, dst, key, nil)
	require.ErrorIs(t, err, ErrStoreCorrupt)
}

func TestDecryptFileCancelled(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 2)
	src := writeTempDB(t, enc)
	dst := filepath.Join(t.TempDir(), "plain.db")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DecryptFile(ctx, src, dst, key, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecryptFileProgress(t *testing.T) {
	key := testKey()
	enc, _ := buildEncryptedDB(t, key, 4)
	src := writeTempDB(t, enc)
	dst := filepath.Join(t.TempDir(), "plain.db")

	var lastDone, lastTotal int64
	require.NoError(t, DecryptFile(context.Background(), src, dst, key, func(done, total int64) {
		lastDone, lastTotal = done, total
	}))
	assert.Equal(t, int64(len(enc)), lastDone, "final progress reports completion")
	assert.Equal(t, int64(len(enc)), lastTotal)
}
