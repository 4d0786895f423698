// Package testutil builds throwaway notification databases for tests.
//
// The fixture mirrors the two tables the daemon reads (record, app) so the
// reader can be exercised against a real SQLite file without touching the
// live usernoted store.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"howett.net/plist"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE app (
	app_id     INTEGER PRIMARY KEY,
	identifier VARCHAR
);
CREATE TABLE record (
	rec_id         INTEGER PRIMARY KEY,
	app_id         INTEGER,
	data           BLOB,
	delivered_date REAL
);
`

// NotifDB is a writable fixture standing in for the Notification Center store.
type NotifDB struct {
	Path string
	WAL  string

	t     *testing.T
	conn  *sql.DB
	apps  map[string]int64
	nexts int64
}

// NewNotifDB creates a fresh fixture database under t.TempDir.
func NewNotifDB(t *testing.T) *NotifDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "db")
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("testutil: open fixture db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("testutil: create fixture schema: %v", err)
	}

	return &NotifDB{
		Path: path,
		WAL:  path + "-wal",
		t:    t,
		conn: conn,
		apps: map[string]int64{},
	}
}

// InsertRecord adds a record with the given rec_id and bundle identifier,
// wrapping title/body into a binary plist blob the way usernoted does.
func (f *NotifDB) InsertRecord(recID int64, bundleID, title, body string) {
	f.t.Helper()
	f.InsertRawRecord(recID, bundleID, f.PlistBlob(bundleID, title, "", body, time.Now()))
}

// InsertRawRecord adds a record with an arbitrary data blob.
func (f *NotifDB) InsertRawRecord(recID int64, bundleID string, data []byte) {
	f.t.Helper()

	appID, ok := f.apps[bundleID]
	if !ok {
		f.nexts++
		appID = f.nexts
		if _, err := f.conn.Exec(`INSERT INTO app (app_id, identifier) VALUES (?, ?)`, appID, bundleID); err != nil {
			f.t.Fatalf("testutil: insert app: %v", err)
		}
		f.apps[bundleID] = appID
	}

	cocoa := float64(time.Now().Unix() - 978307200)
	if _, err := f.conn.Exec(
		`INSERT INTO record (rec_id, app_id, data, delivered_date) VALUES (?, ?, ?, ?)`,
		recID, appID, data, cocoa,
	); err != nil {
		f.t.Fatalf("testutil: insert record: %v", err)
	}
}

// Purge deletes every record, simulating a notification-store reset.
func (f *NotifDB) Purge() {
	f.t.Helper()
	if _, err := f.conn.Exec(`DELETE FROM record`); err != nil {
		f.t.Fatalf("testutil: purge records: %v", err)
	}
}

// PlistBlob encodes notification fields in the binary plist layout the
// daemon decodes: app and date top level, visible fields under req.
func (f *NotifDB) PlistBlob(app, title, subtitle, body string, at time.Time) []byte {
	f.t.Helper()

	payload := map[string]any{
		"app":  app,
		"date": float64(at.Unix() - 978307200),
		"req": map[string]any{
			"titl": title,
			"subt": subtitle,
			"body": body,
		},
	}

	return f.RawPlist(payload)
}

// RawPlist binary-encodes an arbitrary payload.
func (f *NotifDB) RawPlist(payload map[string]any) []byte {
	f.t.Helper()

	data, err := plist.Marshal(payload, plist.BinaryFormat)
	if err != nil {
		f.t.Fatalf("testutil: encode plist: %v", err)
	}
	return data
}
