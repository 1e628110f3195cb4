package wxcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// On-disk layout of a v4 encrypted database: 4096-byte pages, the first page
// prefixed by a 16-byte KDF salt, every page terminated by an 80-byte reserve
// region holding the CBC IV (16 bytes) and an HMAC-SHA512 digest (64 bytes).
const (
	PageSize    = 4096
	SaltSize    = 16
	KeySize     = 32
	ivSize      = 16
	hmacSize    = sha512.Size
	ReserveSize = 80

	kdfIterations    = 256000
	macKdfIterations = 2
)

var sqliteHeader = []byte("SQLite format 3\x00")

// ParseKey decodes a 64-character hex key into its 32 raw bytes. Format
// checking is the caller-facing precondition for everything else in this
// package.
func ParseKey(hexKey string) ([]byte, error) {
	if len(hexKey) != KeySize*2 {
		return nil, fmt.Errorf("key must be %d hex characters, got %d", KeySize*2, len(hexKey))
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}
	return key, nil
}

// pageKeys holds the per-database derived key pair.
type pageKeys struct {
	enc []byte
	mac []byte
}

// deriveKeys runs the v4 key schedule against the salt found at the start of
// the database file.
func deriveKeys(key, salt []byte) pageKeys {
	enc := pbkdf2.Key(key, salt, kdfIterations, KeySize, sha512.New)
	macSalt := make([]byte, len(salt))
	for i, b := range salt {
		macSalt[i] = b ^ 0x3a
	}
	mac := pbkdf2.Key(enc, macSalt, macKdfIterations, KeySize, sha512.New)
	return pageKeys{enc: enc, mac: mac}
}

// pageDataEnd is where the reserve region begins within a page.
const pageDataEnd = PageSize - ReserveSize

// checkPage verifies the HMAC of one page. pageNo is zero-based; the digest
// input uses the one-based page number, little-endian.
func (k pageKeys) checkPage(page []byte, pageNo int64) bool {
	offset := 0
	if pageNo == 0 {
		offset = SaltSize
	}
	h := hmac.New(sha512.New, k.mac)
	h.Write(page[offset : pageDataEnd+ivSize])
	var no [4]byte
	binary.LittleEndian.PutUint32(no[:], uint32(pageNo+1))
	h.Write(no[:])
	return hmac.Equal(h.Sum(nil), page[pageDataEnd+ivSize:pageDataEnd+ivSize+hmacSize])
}

// decryptPage decrypts one page into out, which must be PageSize bytes.
// A page of all zero bytes (unallocated tail of the file) is copied through.
// The first page's salt is replaced with the standard SQLite header so the
// output opens as a plain database; the header it contains already declares
// the 80-byte reserve, so the reserve bytes are copied through untouched.
func (k pageKeys) decryptPage(page, out []byte, pageNo int64) error {
	if len(page) != PageSize || len(out) != PageSize {
		return fmt.Errorf("page %d: bad page length", pageNo)
	}
	if isZeroPage(page) {
		copy(out, page)
		return nil
	}
	if !k.checkPage(page, pageNo) {
		return fmt.Errorf("page %d: hmac mismatch: %w", pageNo, ErrStoreCorrupt)
	}

	offset := 0
	if pageNo == 0 {
		offset = SaltSize
		copy(out, sqliteHeader)
	}
	iv := page[pageDataEnd : pageDataEnd+ivSize]
	ciphertext := page[offset:pageDataEnd]

	block, err := aes.NewCipher(k.enc)
	if err != nil {
		return err
	}
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out[offset:pageDataEnd], ciphertext)
	copy(out[pageDataEnd:], page[pageDataEnd:])
	return nil
}

func isZeroPage(page []byte) bool {
	return bytes.Count(page, []byte{0}) == len(page)
}
