// Package notifdb reads the macOS Notification Center database.
//
// The database is owned and mutated by usernoted; this package opens it
// strictly read-only and treats every transient lock as "try again next
// cycle". Records are identified by rec_id, which increases monotonically
// until the store is purged or recreated.
package notifdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// ErrBusy reports a transient lock on the notification database. The caller
// retries on the next cycle; it is never fatal.
var ErrBusy = errors.New("notifdb: database busy")

// Record is one row of the notification store: the monotonically increasing
// rec_id, the owning app's bundle identifier, and the raw plist blob.
type Record struct {
	RecID       int64
	App         string
	Data        []byte
	DeliveredAt time.Time
}

// Paths holds the detected database file and its write-ahead log.
type Paths struct {
	DB  string
	WAL string
}

// DetectPaths locates the Notification Center database. It prefers the
// Sequoia+ group-container path and falls back to the legacy location
// resolved through getconf DARWIN_USER_DIR.
func DetectPaths(ctx context.Context) (Paths, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		sequoia := filepath.Join(home, "Library", "Group Containers", "group.com.apple.usernoted", "db2", "db")
		if _, err := os.Stat(sequoia); err == nil {
			return Paths{DB: sequoia, WAL: sequoia + "-wal"}, nil
		}
	}

	getconfCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(getconfCtx, "getconf", "DARWIN_USER_DIR").Output()
	if err == nil {
		legacy := filepath.Join(strings.TrimSpace(string(out)), "com.apple.notificationcenter", "db2", "db")
		if _, err := os.Stat(legacy); err == nil {
			return Paths{DB: legacy, WAL: legacy + "-wal"}, nil
		}
	}

	return Paths{}, fmt.Errorf("notifdb: notification database not found; this daemon requires macOS Sequoia (15+) or later with an active notification center database")
}

// DB is a read-only handle on the notification store.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens the notification database read-only. The connection is capped at
// one open conn; the engine is single-threaded and the owning process holds
// the write side.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("notifdb: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	return &DB{conn: conn, path: path}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Validate verifies the database is readable and has the expected schema.
// A read failure on an existing file almost always means the process lacks
// Full Disk Access, so the error spells out how to grant it. Validation
// failures are fatal at startup.
func (d *DB) Validate(ctx context.Context) error {
	var count int64
	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM record`).Scan(&count); err != nil {
		if _, statErr := os.Stat(d.path); statErr == nil {
			return fmt.Errorf("notifdb: cannot read notification database at %s: %w\n"+
				"Full Disk Access is required. To grant access:\n"+
				"  1. Open System Settings > Privacy & Security > Full Disk Access\n"+
				"  2. Add the terminal or launchd context running nchook\n"+
				"  3. Restart the daemon", d.path, err)
		}
		return fmt.Errorf("notifdb: cannot read notification database at %s: %w", d.path, err)
	}

	rows, err := d.conn.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		return fmt.Errorf("notifdb: schema validation failed: %w", err)
	}
	defer rows.Close()

	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("notifdb: schema validation failed: %w", err)
		}
		tables[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("notifdb: schema validation failed: %w", err)
	}
	if !tables["record"] || !tables["app"] {
		return fmt.Errorf("notifdb: unexpected schema in %s: want tables record and app, found %d tables", d.path, len(tables))
	}
	return nil
}

// MaxRecID returns the store's current maximum rec_id, or 0 for an empty
// store. Transient locks surface as ErrBusy.
func (d *DB) MaxRecID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := d.conn.QueryRowContext(ctx, `SELECT MAX(rec_id) FROM record`).Scan(&max); err != nil {
		if isBusy(err) {
			return 0, ErrBusy
		}
		return 0, fmt.Errorf("notifdb: query max rec_id: %w", err)
	}
	return max.Int64, nil
}

// ReadNew returns all records with rec_id strictly greater than cursor in
// ascending order, plus the store's current maximum rec_id. The bundle
// identifier comes from the app table join; it is more reliable than the
// app field inside the plist blob. A busy store yields (nil, 0, ErrBusy).
func (d *DB) ReadNew(ctx context.Context, cursor int64) ([]Record, int64, error) {
	maxID, err := d.MaxRecID(ctx)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			return nil, 0, ErrBusy
		}
		return nil, 0, err
	}

	rows, err := d.conn.QueryContext(ctx, `
		SELECT r.rec_id, r.data, a.identifier, r.delivered_date
		FROM record r
		JOIN app a ON r.app_id = a.app_id
		WHERE r.rec_id > ?
		ORDER BY r.rec_id ASC
	`, cursor)
	if err != nil {
		if isBusy(err) {
			return nil, 0, ErrBusy
		}
		return nil, 0, fmt.Errorf("notifdb: query new records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec       Record
			delivered sql.NullFloat64
		)
		if err := rows.Scan(&rec.RecID, &rec.Data, &rec.App, &delivered); err != nil {
			return nil, 0, fmt.Errorf("notifdb: scan record: %w", err)
		}
		if delivered.Valid {
			rec.DeliveredAt = cocoaTime(delivered.Float64)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		if isBusy(err) {
			return nil, 0, ErrBusy
		}
		return nil, 0, fmt.Errorf("notifdb: iterate records: %w", err)
	}
	return records, maxID, nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED
	}
	return false
}
