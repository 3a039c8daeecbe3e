package render

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Ernesto385291/vexa-googlestt/session"
)

// Store is an append-only record of every event a session delivered, in
// arrival order. It backs the transcript API and the save-to-file feature.
type Store struct {
	mu     sync.RWMutex
	events []session.TranscriptEvent
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Deliver(event session.TranscriptEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a snapshot of everything delivered so far.
func (s *Store) Events() []session.TranscriptEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]session.TranscriptEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Transcript joins the committed (final) results into one text.
func (s *Store) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var builder strings.Builder
	for _, event := range s.events {
		if !event.Final {
			continue
		}
		text := strings.TrimSpace(event.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}
	return builder.String()
}

// Save writes the final transcript to a file, one result per line with
// its timestamp and confidence.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var builder strings.Builder
	for _, event := range s.events {
		if !event.Final {
			continue
		}
		conf := "N/A"
		if event.Confidence > 0 {
			conf = fmt.Sprintf("%.2f", event.Confidence)
		}
		fmt.Fprintf(&builder, "[%s] (%s) %s\n",
			event.Timestamp.Format("15:04:05"), conf, strings.TrimSpace(event.Text))
	}

	if err := os.WriteFile(path, []byte(builder.String()), 0644); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}
