package scribe

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/Ernesto385291/vexa-googlestt/session"
)

// Scribe watches a directory for WAV files and streams each one through
// the recognition pipeline, recording transcripts and pushing live events
// to WebSocket subscribers.
type Scribe struct {
	config Config

	// File system watcher
	watcher *fsnotify.Watcher

	// Transcript storage
	transcripts sync.Map // map[string]*Transcript

	// Live feed subscribers
	subMu       sync.Mutex
	subscribers []*wsConnection

	// Processing queue. queueMu orders enqueue against shutdown so a file
	// event racing Stop never sends on the closed channel.
	queueMu     sync.Mutex
	queueClosed bool
	queue       chan transcriptionJob
	workers     sync.WaitGroup

	// Recognition client, created at Start and shared by all workers.
	recognizer    session.Recognizer
	newRecognizer func(ctx context.Context, cfg session.Config) (session.Recognizer, error)

	// HTTP/Websocket
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new Scribe instance.
func New(cfg Config) (*Scribe, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	s := &Scribe{
		config:  cfg,
		watcher: watcher,
		queue:   make(chan transcriptionJob, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // TODO: Implement proper origin checking
			},
		},
		newRecognizer: func(ctx context.Context, rcfg session.Config) (session.Recognizer, error) {
			return session.NewGoogleRecognizer(ctx, rcfg)
		},
	}

	return s, nil
}

// Start begins the Scribe service. The recognition client is created up
// front so credential problems abort startup instead of failing jobs.
func (s *Scribe) Start(ctx context.Context) error {
	recognizer, err := s.newRecognizer(ctx, session.Config{
		CredentialsFile: s.config.CredentialsFile,
		LanguageCode:    s.config.Language,
		InterimResults:  s.config.InterimResults,
		Punctuation:     s.config.Punctuation,
	})
	if err != nil {
		return fmt.Errorf("failed to create recognizer: %w", err)
	}
	s.recognizer = recognizer

	// Start the worker pool
	for i := 0; i < s.config.Workers; i++ {
		s.workers.Add(1)
		go s.worker(ctx)
	}

	// Start the file system watcher
	go s.watchFiles(ctx)

	// Start the HTTP server
	return s.startHTTP(ctx)
}

// Stop gracefully shuts down the Scribe service.
func (s *Scribe) Stop(ctx context.Context) error {
	// Stop accepting new jobs
	s.queueMu.Lock()
	s.queueClosed = true
	close(s.queue)
	s.queueMu.Unlock()

	// Wait for workers to finish
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	// Wait for workers or context timeout
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out")
	}

	if s.recognizer != nil {
		if err := s.recognizer.Close(); err != nil {
			return fmt.Errorf("failed to close recognizer: %w", err)
		}
	}

	// Stop the HTTP server
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
	}

	// Close the file watcher
	if err := s.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}

	return nil
}
