package wxcrypt

import (
	"fmt"
	"io"
	"os"
)

// ValidateKey probes an encrypted database file with a candidate key without
// decrypting it: it derives the key pair from the file's salt and checks the
// HMAC of the first page only. A wrong key is a normal negative result, not
// an error; errors are reserved for files that cannot be probed at all.
//
// Callers should hand this the smallest database file of the store so the
// probe stays cheap regardless of how large the primary store is.
func ValidateKey(samplePath string, key []byte) (bool, error) {
	if len(key) != KeySize {
		return false, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	f, err := os.Open(samplePath)
	if err != nil {
		return false, fmt.Errorf("open sample database: %w", err)
	}
	defer f.Close()

	page := make([]byte, PageSize)
	if _, err := io.ReadFull(f, page); err != nil {
		return false, fmt.Errorf("sample database smaller than one page: %w", err)
	}

	keys := deriveKeys(key, page[:SaltSize])
	return keys.checkPage(page, 0), nil
}
