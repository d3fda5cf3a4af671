// Package watch reports external changes to track files in the data directory.
package watch

import (
	"context"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/geotracker/internal/storage"
	"github.com/starford/geotracker/internal/trackfile"
)

// EventCallback is called for every observed track file change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, filename string)

// Lister lists the track files currently on disk.
type Lister interface {
	List() ([]storage.FileInfo, error)
}

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on dir and processes track file events
// until ctx is cancelled.
//
// The data directory is flat, so only dir itself is watched. Rename events
// report the old name as deleted and schedule a reconciliation pass that
// compares the files on disk with the set seen so far.
func Watch(ctx context.Context, dir string, files Lister, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}

	known := make(map[string]struct{})
	if infos, err := files.List(); err == nil {
		for _, fi := range infos {
			known[fi.Name] = struct{}{}
		}
	}
	emit := func(kind, name string) {
		logger.Debug("watcher: track file changed", slog.String("file", name), slog.String("op", kind))
		if cb != nil {
			cb(kind, name)
		}
	}

	logger.Info("watcher: started", slog.String("root", dir))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(files, known, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if match, _ := path.Match(trackfile.Pattern, name); !match {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				_, seen := known[name]
				known[name] = struct{}{}
				if seen {
					emit("updated", name)
				} else {
					emit("created", name)
				}

			case ev.Op&fsnotify.Write != 0:
				known[name] = struct{}{}
				emit("updated", name)

			case ev.Op&fsnotify.Remove != 0:
				delete(known, name)
				emit("deleted", name)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports only the old name; the new one arrives
				// as a Create if it stays inside dir.
				delete(known, name)
				emit("deleted", name)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile brings known in line with the directory listing and reports
// every difference.
func reconcile(files Lister, known map[string]struct{}, logger *slog.Logger, emit func(kind, name string)) {
	infos, err := files.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	disk := make(map[string]struct{}, len(infos))
	for _, fi := range infos {
		disk[fi.Name] = struct{}{}
	}
	for name := range known {
		if _, ok := disk[name]; !ok {
			delete(known, name)
			emit("deleted", name)
		}
	}
	for name := range disk {
		if _, ok := known[name]; !ok {
			known[name] = struct{}{}
			emit("created", name)
		}
	}
}
