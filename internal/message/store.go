package message

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active catalog and swaps it atomically on reload.
type Store struct {
	current atomic.Pointer[Catalog]
	path    string
	logger  *slog.Logger
}

// NewStore loads the catalog at path layered over the embedded default.
// An empty path uses the default catalog alone.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger.With("component", "message_catalog")}

	cat := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cat = loaded
	}
	s.current.Store(cat)
	return s, nil
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Render renders r with the active catalog.
func (s *Store) Render(r Reminder) (string, error) {
	return s.Catalog().Render(r)
}

// Reload re-reads the catalog file. On failure the previous catalog stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cat, err := LoadFile(s.path)
	if err != nil {
		s.logger.Warn("message catalog reload failed, keeping previous catalog",
			"path", s.path, "error", err)
		return err
	}
	s.current.Store(cat)
	s.logger.Info("message catalog reloaded", "path", s.path, "languages", cat.Languages())
	return nil
}

// Watch reloads the catalog whenever its file changes, until ctx ends.
// The parent directory is watched so editors that replace the file by
// rename are picked up too. Without a path Watch returns immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	target := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	s.logger.Debug("watching message catalog", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				_ = s.Reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("message catalog watcher error", "error", err)
		}
	}
}
