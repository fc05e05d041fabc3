package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"hostbridge/pkg/logger"
)

// DefaultDebounce groups bursts of writes from publish steps into one change.
const DefaultDebounce = 150 * time.Millisecond

// Watcher reports changes below a content root.
type Watcher struct {
	root     string
	debounce time.Duration
	log      *slog.Logger
}

func NewWatcher(root string, debounce time.Duration, log *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		log:      logger.Component(log, "content.watcher"),
	}
}

// Run watches the root recursively until ctx is done. onChange receives the
// sorted, slash-separated relative paths changed during one debounce window.
func (w *Watcher) Run(ctx context.Context, onChange func(changed []string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create content watcher: %w", err)
	}
	defer func() {
		_ = fsw.Close()
	}()

	if err := w.addTree(fsw, w.root); err != nil {
		return fmt.Errorf("watch content root: %w", err)
	}
	w.log.Info("Watching content root", "root", w.root, "debounce", w.debounce)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := w.addTree(fsw, event.Name); addErr != nil {
						w.log.Warn("Failed to watch new directory", "path", event.Name, "error", addErr)
					}
				}
			}

			rel, relErr := filepath.Rel(w.root, event.Name)
			if relErr != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Content watcher error", "error", watchErr)
		case <-fire:
			fire = nil
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)

			w.log.Debug("Content changed", "count", len(changed))
			if onChange != nil {
				onChange(changed)
			}
		}
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if current != dir && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}

		return fsw.Add(current)
	})
}
