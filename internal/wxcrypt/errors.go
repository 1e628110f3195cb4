package wxcrypt

import "errors"

var (
	// ErrDecryptionFailed means the key is well-formed but does not open this store.
	ErrDecryptionFailed = errors.New("decryption key rejected by store")

	// ErrAccountNotFound means no account directory with a db_storage subtree
	// exists under the root path (or the requested account id does not exist).
	ErrAccountNotFound = errors.New("no matching account directory under root")

	// ErrAccountAmbiguous means more than one account qualifies and no account
	// id was supplied to pick one.
	ErrAccountAmbiguous = errors.New("multiple account directories found, account id required")

	// ErrStoreCorrupt means the key was accepted but the decrypted structure is
	// not a readable database.
	ErrStoreCorrupt = errors.New("store is structurally invalid")

	// ErrStoreClosed is returned by operations on a closed handle.
	ErrStoreClosed = errors.New("store handle is closed")
)
