// Package watch reports invoice files as they appear in directories.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zombor/invoice-extract/internal/document"
)

// Config controls a watcher
type Config struct {
	// Roots are watched recursively
	Roots []string
	// InitialScan emits files already present under Roots
	InitialScan bool
	// Debounce coalesces bursts of writes to the same file
	Debounce time.Duration
	// Accept reports whether a path should be emitted. Defaults to
	// document.IsAllowed.
	Accept func(path string) bool
}

// Start watches cfg.Roots until ctx is cancelled. Both channels are closed
// when the watcher stops.
func Start(ctx context.Context, cfg Config, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	if cfg.Accept == nil {
		cfg.Accept = document.IsAllowed
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("creating watcher: %w", err)
	}

	var existing []string
	for _, root := range cfg.Roots {
		files, err := addTree(w, root)
		if err != nil {
			w.Close()
			return nil, nil, fmt.Errorf("watching %s: %w", root, err)
		}
		existing = append(existing, files...)
	}

	paths := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)
		defer w.Close()

		if cfg.InitialScan {
			for _, p := range existing {
				if !cfg.Accept(p) {
					continue
				}
				select {
				case paths <- p:
				case <-ctx.Done():
					return
				}
			}
		}

		var (
			pending = map[string]struct{}{}
			order   []string
			timer   = time.NewTimer(time.Hour)
		)
		timer.Stop()
		defer timer.Stop()

		queue := func(p string) {
			if _, seen := pending[p]; !seen {
				pending[p] = struct{}{}
				order = append(order, p)
			}
		}
		flush := func() bool {
			for _, p := range order {
				select {
				case paths <- p:
				case <-ctx.Done():
					return false
				}
			}
			clear(pending)
			order = order[:0]
			return true
		}
		schedule := func() bool {
			if cfg.Debounce <= 0 {
				return flush()
			}
			timer.Reset(cfg.Debounce)
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						files, err := addTree(w, e.Name)
						if err != nil {
							logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
						}
						for _, f := range files {
							if cfg.Accept(f) {
								queue(f)
							}
						}
						if !schedule() {
							return
						}
						continue
					}
				}
				if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
					continue
				}
				if !cfg.Accept(e.Name) {
					continue
				}
				logger.Debug("file event", "path", e.Name, "op", e.Op.String())
				queue(e.Name)
				if !schedule() {
					return
				}
			case <-timer.C:
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errs <- err:
				default:
				}
			}
		}
	}()

	return paths, errs, nil
}

// addTree watches root and every directory below it, returning the files found
func addTree(w *fsnotify.Watcher, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		files = append(files, path)
		return nil
	})
	return files, err
}
