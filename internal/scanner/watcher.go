package scanner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentharness/harness/internal/logging"
)

// Watcher triggers a Sync of a single project root whenever a relevant
// on-disk write is observed, supplementing the pull-only SyncProjectState
// call with a push trigger. It watches the project root non-recursively
// (to catch new phase directories such as 02-build/ appearing) plus every
// existing phase directory (to catch *-SUMMARY.md writes landing inside
// them), matching the layout walk() already understands.
type Watcher struct {
	scanner     *Scanner
	projectRoot string
	fsw         *fsnotify.Watcher
}

// NewWatcher creates a Watcher for projectRoot.
func NewWatcher(s *Scanner, projectRoot string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(projectRoot); err != nil {
		fsw.Close()
		return nil, err
	}

	entries, err := os.ReadDir(projectRoot)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if m := phaseDirRe.FindStringSubmatch(entry.Name()); m != nil {
				_ = fsw.Add(filepath.Join(projectRoot, entry.Name()))
			}
		}
	}

	return &Watcher{scanner: s, projectRoot: projectRoot, fsw: fsw}, nil
}

// Run blocks, rescanning projectRoot on every write/create/remove/rename
// event until ctx is canceled. A newly created phase directory is added to
// the watch set so its later SUMMARY.md writes are also observed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	log := logging.Named("scanner-watcher")

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if m := phaseDirRe.FindStringSubmatch(filepath.Base(ev.Name)); m != nil {
						_ = w.fsw.Add(ev.Name)
					}
				}
			}

			if _, err := w.scanner.Sync(w.projectRoot); err != nil {
				log.Warn("reactive rescan failed", zap.String("projectRoot", w.projectRoot), zap.Error(err))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn("fsnotify watch error", zap.String("projectRoot", w.projectRoot), zap.Error(err))
		case <-ctx.Done():
			return nil
		}
	}
}
