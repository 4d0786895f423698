// Package watch blocks until the notification database is mutated.
//
// usernoted appends to the database's write-ahead log on every delivered
// notification, so a WAL write is the cheapest wake-up hint available. The
// hint is exactly that: the caller re-queries whether or not an event fired,
// and the poll-interval timeout covers missed events.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Detector waits for mutations of the store's backing files.
type Detector struct {
	dbPath  string
	walPath string
	dir     string
	logger  *slog.Logger

	// watcher is nil when fsnotify could not be established; the detector
	// then degrades to plain timer waits.
	watcher *fsnotify.Watcher
}

// New builds a Detector over the database file and its WAL. The watch is
// registered on the parent directory rather than the WAL file itself, so
// WAL checkpoints (delete + recreate) never orphan the watch.
func New(dbPath, walPath string, logger *slog.Logger) *Detector {
	d := &Detector{
		dbPath:  dbPath,
		walPath: walPath,
		dir:     filepath.Dir(dbPath),
		logger:  logger,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("change detector unavailable, falling back to timer-only polling", "error", err)
		return d
	}
	if err := watcher.Add(d.dir); err != nil {
		logger.Warn("cannot watch notification db directory, falling back to timer-only polling",
			"dir", d.dir, "error", err)
		watcher.Close()
		return d
	}
	d.watcher = watcher
	return d
}

// Close releases the underlying watcher.
func (d *Detector) Close() error {
	if d.watcher == nil {
		return nil
	}
	return d.watcher.Close()
}

// WaitForChange blocks until the database or its WAL is touched, the timeout
// elapses, or ctx is cancelled. It returns true only for an observed
// mutation; the caller re-queries the store either way.
func (d *Detector) WaitForChange(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if d.watcher == nil {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		return false
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case ev, ok := <-d.watcher.Events:
			if !ok {
				d.logger.Warn("change detector event stream closed, falling back to timer-only polling")
				d.watcher = nil
				select {
				case <-ctx.Done():
				case <-timer.C:
				}
				return false
			}
			if !d.relevant(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				// WAL rotated out underneath us. The directory watch
				// survives, but re-add defensively in case the directory
				// entry itself was replaced.
				d.rearm()
			}
			return true
		case err, ok := <-d.watcher.Errors:
			if !ok {
				continue
			}
			d.logger.Debug("change detector error", "error", err)
		}
	}
}

// relevant reports whether an event path belongs to the store's backing
// files (db, db-wal, db-shm).
func (d *Detector) relevant(name string) bool {
	switch name {
	case d.dbPath, d.walPath, d.dbPath + "-shm":
		return true
	}
	return false
}

func (d *Detector) rearm() {
	if err := d.watcher.Add(d.dir); err != nil {
		d.logger.Debug("re-registering directory watch failed", "dir", d.dir, "error", err)
	}
}
