// Package watcher keeps the vector index and changelog in sync with
// on-disk YAML records while the server is running.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/algerknown/algerknown/internal/kbservice"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "indexed", "removed".
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the content root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each successful index mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// index entries whose files no longer exist on disk.
func Watch(ctx context.Context, svc *kbservice.Service, contentRoot string, logger *slog.Logger, cb EventCallback) error {
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, contentRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", contentRoot))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
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
			reconcile(ctx, svc, contentRoot, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			path := ev.Name

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", path))
					}
					// Index any .yaml files already in the new directory.
					syncNewDir(ctx, svc, path, logger, cb)
					continue
				}
			}

			// Only process .yaml records from here on.
			if !strings.HasSuffix(path, ".yaml") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				changed, syncErr := svc.SyncPath(ctx, path)
				if syncErr != nil {
					logger.Warn("watcher: sync failed",
						slog.String("path", path), slog.String("error", syncErr.Error()))
					continue
				}
				if !changed {
					continue
				}
				logger.Debug("watcher: synced", slog.String("path", path))
				if cb != nil {
					cb("indexed", path)
				}

			case ev.Op&fsnotify.Remove != 0:
				if delErr := svc.RemovePath(path); delErr != nil {
					logger.Warn("watcher: remove failed",
						slog.String("path", path), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: removed", slog.String("path", path))
				if cb != nil {
					cb("removed", path)
				}

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new
				// path will arrive as a separate Create event (if it
				// stays within a watched dir). We drop the old entry
				// immediately and schedule a short reconciliation pass
				// to catch any stragglers.
				if delErr := svc.RemovePath(path); delErr != nil {
					logger.Warn("watcher: rename remove failed",
						slog.String("path", path), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: rename old removed", slog.String("path", path))
					if cb != nil {
						cb("removed", path)
					}
				}
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

// reconcile removes indexed records whose files no longer exist on disk and
// syncs every on-disk record. SyncPath's checksum check keeps the second
// half cheap.
func reconcile(ctx context.Context, svc *kbservice.Service, contentRoot string, logger *slog.Logger, cb EventCallback) {
	for _, item := range svc.Entries() {
		if item.Path == "" {
			continue
		}
		if _, statErr := os.Stat(item.Path); os.IsNotExist(statErr) {
			if delErr := svc.RemovePath(item.Path); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("path", item.Path))
				if cb != nil {
					cb("removed", item.Path)
				}
			}
		}
	}

	_ = filepath.WalkDir(contentRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		changed, syncErr := svc.SyncPath(ctx, path)
		if syncErr != nil {
			logger.Warn("reconcile: sync failed",
				slog.String("path", path), slog.String("error", syncErr.Error()))
			return nil
		}
		if !changed {
			return nil
		}
		logger.Debug("reconcile: synced", slog.String("path", path))
		if cb != nil {
			cb("indexed", path)
		}
		return nil
	})
}

// syncNewDir indexes any .yaml records found in a newly created directory.
func syncNewDir(ctx context.Context, svc *kbservice.Service, dirPath string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		changed, syncErr := svc.SyncPath(ctx, path)
		if syncErr != nil || !changed {
			return nil
		}
		logger.Debug("watcher: synced from new dir", slog.String("path", path))
		if cb != nil {
			cb("indexed", path)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
