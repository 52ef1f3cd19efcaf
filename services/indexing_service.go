package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// InboxWatcher keeps the notes of one owner in step with a directory of
// .md, .txt and .pdf files. Every change goes through the synchronizer.
type InboxWatcher struct {
	importer *NoteImporter
	notes    *NoteSynchronizer
	dir      string
	ownerID  string

	mu     sync.Mutex
	hashes map[string]string
	log    *logrus.Entry
}

func NewInboxWatcher(importer *NoteImporter, notes *NoteSynchronizer, dir, ownerID string) *InboxWatcher {
	return &InboxWatcher{
		importer: importer,
		notes:    notes,
		dir:      filepath.Clean(dir),
		ownerID:  ownerID,
		hashes:   make(map[string]string),
		log:      logrus.WithField("component", "inbox"),
	}
}

// Scan imports new or changed files and deletes notes whose file is gone.
func (w *InboxWatcher) Scan(ctx context.Context) error {
	w.log.Infof("INBOX: Starting directory scan for: %s", w.dir)

	local := make(map[string]bool)
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsSupportedFile(path) {
			return nil
		}
		local[path] = true
		w.syncFile(ctx, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", w.dir, err)
	}

	notes, err := w.notes.List(ctx, w.ownerID)
	if err != nil {
		return fmt.Errorf("list inbox notes: %w", err)
	}
	for _, n := range notes {
		if n.SourcePath == "" || !w.owns(n.SourcePath) || local[n.SourcePath] {
			continue
		}
		w.log.Infof("INBOX: File deleted: %s. Removing note %s...", n.SourcePath, n.ID)
		w.remove(ctx, n.SourcePath)
	}
	w.log.Info("INBOX: Directory scan finished.")
	return nil
}

// Watch applies file events until ctx is cancelled. Subdirectories are
// watched too, including ones created while watching.
func (w *InboxWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.log.Infof("INBOX: Watching directory: %s", w.dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("INBOX: Watcher error")
		case <-ctx.Done():
			w.log.Info("INBOX: Context cancelled, shutting down watcher.")
			return nil
		}
	}
}

// addTree registers root and every directory below it.
func (w *InboxWatcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func (w *InboxWatcher) handle(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	w.log.Debugf("INBOX EVENT: %s", event)

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(watcher, event.Name); err != nil {
				w.log.WithError(err).Warnf("INBOX: Could not watch %s", event.Name)
			}
			// Files may land in the new directory before it is watched.
			w.syncTree(ctx, event.Name)
			return
		}
	}

	if !IsSupportedFile(event.Name) {
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.removeTree(ctx, event.Name)
		}
		return
	}

	switch {
	case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
		w.syncFile(ctx, event.Name)
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		// Editors often save through a rename; a file that still exists is kept.
		if _, err := os.Stat(event.Name); err == nil {
			w.syncFile(ctx, event.Name)
			return
		}
		w.remove(ctx, event.Name)
	}
}

func (w *InboxWatcher) syncTree(ctx context.Context, root string) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsSupportedFile(path) {
			w.syncFile(ctx, path)
		}
		return nil
	})
	if err != nil {
		w.log.WithError(err).Warnf("INBOX: Could not scan %s", root)
	}
}

// removeTree deletes the notes of every file that lived under a directory
// which was removed or moved away.
func (w *InboxWatcher) removeTree(ctx context.Context, dir string) {
	if _, err := os.Stat(dir); err == nil {
		return
	}
	notes, err := w.notes.List(ctx, w.ownerID)
	if err != nil {
		w.log.WithError(err).Errorf("INBOX: Could not list notes under %s", dir)
		return
	}
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	for _, n := range notes {
		if strings.HasPrefix(n.SourcePath, prefix) {
			w.log.Infof("INBOX: Directory gone: %s. Removing note %s...", dir, n.ID)
			w.remove(ctx, n.SourcePath)
		}
	}
}

// syncFile imports path unless its content hash is unchanged since the last import.
func (w *InboxWatcher) syncFile(ctx context.Context, path string) {
	hash, err := calculateFileHash(path)
	if err != nil {
		w.log.WithError(err).Warnf("INBOX: Could not hash file %s", path)
		return
	}
	w.mu.Lock()
	unchanged := w.hashes[path] == hash
	w.mu.Unlock()
	if unchanged {
		return
	}

	note, err := w.importer.ImportPath(ctx, w.ownerID, path)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			w.log.WithError(err).Warnf("INBOX: Skipping %s", path)
		} else {
			w.log.WithError(err).Errorf("INBOX: Failed to import %s", path)
		}
		return
	}
	w.mu.Lock()
	w.hashes[path] = hash
	w.mu.Unlock()
	w.log.Infof("INBOX: Synced %s as note %s", path, note.ID)
}

func (w *InboxWatcher) remove(ctx context.Context, path string) {
	if err := w.importer.RemovePath(ctx, w.ownerID, path); err != nil {
		w.log.WithError(err).Errorf("INBOX: Failed to delete note for %s", path)
		return
	}
	w.mu.Lock()
	delete(w.hashes, path)
	w.mu.Unlock()
}

func (w *InboxWatcher) owns(path string) bool {
	return strings.HasPrefix(filepath.Clean(path), w.dir+string(filepath.Separator))
}

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
