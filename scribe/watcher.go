package scribe

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

func (s *Scribe) watchFiles(ctx context.Context) {
	if err := os.MkdirAll(s.config.WatchDir, 0755); err != nil {
		slog.Error("Failed to create watch directory",
			"error", err,
			"path", s.config.WatchDir)
		return
	}

	if err := s.watcher.Add(s.config.WatchDir); err != nil {
		slog.Error("Failed to start watching directory",
			"error", err,
			"path", s.config.WatchDir)
		return
	}

	slog.Info("Watching for audio files", "path", s.config.WatchDir)

	// Pick up files that were already there before the watcher started.
	s.enqueueExisting()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleFSEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (s *Scribe) enqueueExisting() {
	entries, err := os.ReadDir(s.config.WatchDir)
	if err != nil {
		slog.Error("Failed to scan watch directory", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !isWavFile(entry.Name()) {
			continue
		}
		s.enqueue(filepath.Join(s.config.WatchDir, entry.Name()))
	}
}

func (s *Scribe) handleFSEvent(event fsnotify.Event) {
	// Writers drop files as .tmp and rename when complete; only a create
	// of the final name queues a job.
	if event.Op != fsnotify.Create && event.Op != fsnotify.Rename {
		return
	}
	if !isWavFile(event.Name) {
		return
	}
	if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
		return
	}
	s.enqueue(event.Name)
}

func (s *Scribe) enqueue(path string) {
	job := transcriptionJob{
		ID:       uuid.NewString(),
		FilePath: path,
		QueuedAt: time.Now(),
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queueClosed {
		slog.Debug("Shutting down, dropping file",
			"file", filepath.Base(path))
		return
	}

	select {
	case s.queue <- job:
		slog.Info("Queued audio file for transcription",
			"id", job.ID,
			"file", filepath.Base(path))
	default:
		slog.Warn("Job queue is full, dropping file",
			"file", filepath.Base(path))
	}
}

func isWavFile(name string) bool {
	if strings.HasSuffix(name, ".tmp") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".wav")
}
