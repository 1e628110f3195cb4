// Package storetest builds small decrypted stores on disk for tests. The
// fixtures carry the same layout and schema the query layer expects from a
// real decrypted backup.
package storetest

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

// Contact seeds one row of the contact database.
type Contact struct {
	ID       string
	Nickname string
	Remark   string
}

// Session seeds one row of the session database.
type Session struct {
	ID       string
	Summary  string
	LastTime time.Time
}

// Message seeds one row of the primary message shard.
type Message struct {
	Talker   string
	Sender   string
	IsSender bool
	Type     int
	Time     time.Time
	Content  string
}

// Seed describes the content of a fixture store.
type Seed struct {
	Sessions []Session
	Contacts []Contact
	Messages []Message
}

// Open writes the seed into a fresh store under a temp directory and opens it
// in backup mode. The handle is closed when the test ends.
func Open(t testing.TB, seed Seed) *wxcrypt.StoreHandle {
	return OpenMode(t, seed, wxcrypt.ModeBackup)
}

// OpenMode is Open with an explicit handle mode.
func OpenMode(t testing.TB, seed Seed, mode wxcrypt.Mode) *wxcrypt.StoreHandle {
	t.Helper()
	dir := Build(t, seed)
	handle, err := wxcrypt.OpenDecrypted(dir, mode)
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	t.Cleanup(func() { handle.Close() })
	return handle
}

// Build writes the seed databases under a temp directory and returns its path.
func Build(t testing.TB, seed Seed) string {
	t.Helper()
	dir := t.TempDir()

	msgDB := createDB(t, filepath.Join(dir, "message", "message_0.db"), `
		CREATE TABLE message (
			local_id    INTEGER PRIMARY KEY AUTOINCREMENT,
			talker      TEXT NOT NULL,
			sender      TEXT NOT NULL,
			is_sender   INTEGER NOT NULL,
			type        INTEGER NOT NULL,
			create_time INTEGER NOT NULL,
			content     TEXT NOT NULL
		)`)
	mustExec(t, msgDB, "CREATE INDEX idx_message_talker_time ON message (talker, create_time)")
	for _, m := range seed.Messages {
		isSender := 0
		if m.IsSender {
			isSender = 1
		}
		mustExec(t, msgDB,
			"INSERT INTO message (talker, sender, is_sender, type, create_time, content) VALUES (?, ?, ?, ?, ?, ?)",
			m.Talker, m.Sender, isSender, m.Type, m.Time.Unix(), m.Content)
	}
	closeDB(t, msgDB)

	sessDB := createDB(t, filepath.Join(dir, "session", "session.db"), `
		CREATE TABLE SessionTable (
			username       TEXT PRIMARY KEY,
			summary        TEXT,
			last_timestamp INTEGER
		);`)
	for _, s := range seed.Sessions {
		mustExec(t, sessDB,
			"INSERT INTO SessionTable (username, summary, last_timestamp) VALUES (?, ?, ?)",
			s.ID, s.Summary, s.LastTime.Unix())
	}
	closeDB(t, sessDB)

	contactDB := createDB(t, filepath.Join(dir, "contact", "contact.db"), `
		CREATE TABLE contact (
			username  TEXT PRIMARY KEY,
			nick_name TEXT,
			remark    TEXT
		);`)
	for _, c := range seed.Contacts {
		mustExec(t, contactDB,
			"INSERT INTO contact (username, nick_name, remark) VALUES (?, ?, ?)",
			c.ID, c.Nickname, c.Remark)
	}
	closeDB(t, contactDB)

	return dir
}

func createDB(t testing.TB, path, schema string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture directory: %v", err)
	}
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		t.Fatalf("open fixture database %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)
	mustExec(t, db, schema)
	return db
}

func mustExec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec fixture statement: %v", err)
	}
}

func closeDB(t testing.TB, db *sql.DB) {
	t.Helper()
	if err := db.Close(); err != nil {
		t.Fatalf("close fixture database: %v", err)
	}
}
