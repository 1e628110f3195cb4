package wxcrypt

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lumarchive/chatscope/internal/logging"
)

// Mode selects how a store is opened.
type Mode int

const (
	// ModeBackup decrypts the store into a persistent plaintext copy under
	// the work directory. Heavy analytics requires this mode.
	ModeBackup Mode = iota
	// ModeRealtime decrypts a throwaway snapshot of the live encrypted files
	// into a temporary location that is deleted when the handle closes.
	// Suitable for browsing only.
	ModeRealtime
)

func (m Mode) String() string {
	if m == ModeRealtime {
		return "realtime"
	}
	return "backup"
}

// The storage subtree every account directory is expected to carry.
const storageDirName = "db_storage"

const (
	messageSubdir = "message"
	sessionSubdir = "session"
	contactSubdir = "contact"
)

// OpenOptions configures OpenStore.
type OpenOptions struct {
	Root      string
	Key       []byte
	AccountID string // required when more than one account qualifies
	Mode      Mode
	WorkDir   string // destination for decrypted copies in backup mode
	Progress  ProgressFunc
}

// StoreHandle is the sole gateway for reading a decrypted store. It is safe
// for shared read-only use across goroutines.
type StoreHandle struct {
	mu         sync.Mutex
	db         *sql.DB
	mode       Mode
	accountID  string
	sourcePath string // live encrypted primary message database
	tempDir    string // set in realtime mode, removed on Close
	closed     bool
}

// DB returns the underlying connection, or ErrStoreClosed.
func (h *StoreHandle) DB() (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrStoreClosed
	}
	return h.db, nil
}

// Mode reports how the store was opened.
func (h *StoreHandle) Mode() Mode { return h.mode }

// AccountID returns the account this handle was opened for.
func (h *StoreHandle) AccountID() string { return h.accountID }

// SourcePath returns the live encrypted primary message database; its
// modification time is the staleness fingerprint for everything derived from
// this store.
func (h *StoreHandle) SourcePath() string { return h.sourcePath }

// Fingerprint returns the modification time of the live primary store file in
// unix nanoseconds.
func (h *StoreHandle) Fingerprint() (int64, error) {
	info, err := os.Stat(h.sourcePath)
	if err != nil {
		return 0, fmt.Errorf("stat primary store: %w", err)
	}
	return info.ModTime().UnixNano(), nil
}

// Close releases the connection and, in realtime mode, deletes the transient
// decrypted snapshot. Closing twice is a no-op.
func (h *StoreHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	err := h.db.Close()
	if h.tempDir != "" {
		if rmErr := os.RemoveAll(h.tempDir); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

// OpenStore locates the account subtree under the root, validates the key
// against the smallest database of the store, decrypts per the chosen mode
// and returns a queryable handle.
func OpenStore(ctx context.Context, opts OpenOptions) (*StoreHandle, error) {
	account, err := resolveAccount(opts.Root, opts.AccountID)
	if err != nil {
		return nil, err
	}
	storageDir := filepath.Join(opts.Root, account, storageDirName)

	sample, err := smallestDatabase(storageDir)
	if err != nil {
		return nil, err
	}
	ok, err := ValidateKey(sample, opts.Key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDecryptionFailed
	}

	var destDir string
	tempDir := ""
	switch opts.Mode {
	case ModeRealtime:
		destDir, err = os.MkdirTemp("", "chatscope-rt-*")
		if err != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", err)
		}
		tempDir = destDir
	default:
		if opts.WorkDir == "" {
			return nil, fmt.Errorf("backup mode requires a work directory")
		}
		destDir = filepath.Join(opts.WorkDir, account)
	}

	layout, err := decryptStore(ctx, storageDir, destDir, opts)
	if err != nil {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, err
	}

	db, err := openDatabases(layout)
	if err != nil {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
		return nil, err
	}

	logging.Log.Info("store opened",
		"account", account, "mode", opts.Mode.String(), "shards", len(layout.messages))

	return &StoreHandle{
		db:         db,
		mode:       opts.Mode,
		accountID:  account,
		sourcePath: layout.sourcePrimary,
		tempDir:    tempDir,
	}, nil
}

// OpenDecrypted opens a directory that already holds decrypted databases
// (a backup copy produced by an earlier run) without requiring the key.
// mode tags the handle; analytics only accepts backup handles.
func OpenDecrypted(dir string, mode Mode) (*StoreHandle, error) {
	shards, err := filepath.Glob(filepath.Join(dir, messageSubdir, "message_*.db"))
	if err != nil {
		return nil, err
	}
	sort.Strings(shards)
	if len(shards) == 0 {
		return nil, fmt.Errorf("no decrypted message databases under %s: %w", dir, ErrStoreCorrupt)
	}
	layout := &storeLayout{
		messages:      shards,
		session:       filepath.Join(dir, sessionSubdir, "session.db"),
		contact:       filepath.Join(dir, contactSubdir, "contact.db"),
		sourcePrimary: shards[0],
	}
	db, err := openDatabases(layout)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{
		db:         db,
		mode:       mode,
		accountID:  filepath.Base(dir),
		sourcePath: layout.sourcePrimary,
	}, nil
}

// FindSampleDatabase resolves the account under root and returns the
// smallest encrypted database of its store, the file key validation should
// probe.
func FindSampleDatabase(root, accountID string) (string, error) {
	account, err := resolveAccount(root, accountID)
	if err != nil {
		return "", err
	}
	return smallestDatabase(filepath.Join(root, account, storageDirName))
}

// resolveAccount picks the account directory to open. With an explicit id the
// directory must exist and carry the storage subtree; otherwise exactly one
// candidate must qualify.
func resolveAccount(root, accountID string) (string, error) {
	if accountID != "" {
		if hasStorageSubtree(filepath.Join(root, accountID)) {
			return accountID, nil
		}
		return "", fmt.Errorf("account %q: %w", accountID, ErrAccountNotFound)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read root directory: %w", err)
	}
	var candidates []string
	for _, e := range entries {
		if e.IsDir() && hasStorageSubtree(filepath.Join(root, e.Name())) {
			candidates = append(candidates, e.Name())
		}
	}
	switch len(candidates) {
	case 0:
		return "", ErrAccountNotFound
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAccountAmbiguous, strings.Join(candidates, ", "))
	}
}

func hasStorageSubtree(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, storageDirName))
	return err == nil && info.IsDir()
}

// smallestDatabase walks the storage subtree and returns the smallest .db
// file, the cheapest possible probe target for key validation.
func smallestDatabase(storageDir string) (string, error) {
	var best string
	var bestSize int64 = -1
	err := filepath.WalkDir(storageDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".db") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		// Anything below one page cannot be probed.
		if info.Size() < PageSize {
			return nil
		}
		if bestSize < 0 || info.Size() < bestSize {
			best, bestSize = path, info.Size()
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan storage subtree: %w", err)
	}
	if best == "" {
		return "", fmt.Errorf("no database files under %s: %w", storageDir, ErrAccountNotFound)
	}
	return best, nil
}

// storeLayout records where the decrypted databases ended up.
type storeLayout struct {
	messages      []string // decrypted message shards, sorted; [0] is primary
	session       string
	contact       string
	sourcePrimary string // encrypted primary shard (fingerprint source)
}

// decryptStore decrypts the message shards plus the session and contact
// databases into destDir, preserving the storage layout. In backup mode a
// shard whose decrypted copy is already newer than its source is reused.
func decryptStore(ctx context.Context, storageDir, destDir string, opts OpenOptions) (*storeLayout, error) {
	shards, err := filepath.Glob(filepath.Join(storageDir, messageSubdir, "message_*.db"))
	if err != nil {
		return nil, err
	}
	sort.Strings(shards)
	if len(shards) == 0 {
		return nil, fmt.Errorf("no message databases under %s: %w", storageDir, ErrStoreCorrupt)
	}

	layout := &storeLayout{sourcePrimary: shards[0]}

	type job struct{ src, dst string }
	jobs := make([]job, 0, len(shards)+2)
	for _, src := range shards {
		dst := filepath.Join(destDir, messageSubdir, filepath.Base(src))
		jobs = append(jobs, job{src, dst})
		layout.messages = append(layout.messages, dst)
	}
	layout.session = filepath.Join(destDir, sessionSubdir, "session.db")
	jobs = append(jobs, job{filepath.Join(storageDir, sessionSubdir, "session.db"), layout.session})
	layout.contact = filepath.Join(destDir, contactSubdir, "contact.db")
	jobs = append(jobs, job{filepath.Join(storageDir, contactSubdir, "contact.db"), layout.contact})

	for _, j := range jobs {
		if opts.Mode == ModeBackup && upToDate(j.src, j.dst) {
			logging.Log.Debug("reusing decrypted copy", "db", filepath.Base(j.dst))
			continue
		}
		if err := DecryptFile(ctx, j.src, j.dst, opts.Key, opts.Progress); err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", filepath.Base(j.src), err)
		}
	}
	return layout, nil
}

func upToDate(src, dst string) bool {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return dstInfo.Size() > 0 && !dstInfo.ModTime().Before(srcInfo.ModTime())
}

// openDatabases opens the primary shard, attaches the remaining databases and
// builds the unified message view the query layer reads from.
func openDatabases(layout *storeLayout) (*sql.DB, error) {
	db, err := sql.Open("libsql", "file:"+layout.messages[0])
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// ATTACH and temp views are connection-scoped.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	attach := func(path, as string) error {
		_, err := db.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS %s", strings.ReplaceAll(path, "'", "''"), as))
		return err
	}
	if err := attach(layout.session, "sessiondb"); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach session database: %w", err)
	}
	if err := attach(layout.contact, "contactdb"); err != nil {
		db.Close()
		return nil, fmt.Errorf("attach contact database: %w", err)
	}

	selects := []string{"SELECT talker, sender, is_sender, type, create_time, content FROM main.message"}
	for i, shard := range layout.messages[1:] {
		as := fmt.Sprintf("msg_%d", i+1)
		if err := attach(shard, as); err != nil {
			db.Close()
			return nil, fmt.Errorf("attach message shard %d: %w", i+1, err)
		}
		selects = append(selects, fmt.Sprintf(
			"SELECT talker, sender, is_sender, type, create_time, content FROM %s.message", as))
	}
	view := "CREATE TEMP VIEW all_message AS " + strings.Join(selects, " UNION ALL ")
	if _, err := db.Exec(view); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create message view: %v", ErrStoreCorrupt, err)
	}
	return db, nil
}
