package scribe

import (
	"time"

	"github.com/Ernesto385291/vexa-googlestt/session"
)

// Transcript is the recorded output of one processed audio file.
type Transcript struct {
	ID          string                    `json:"id"`
	AudioFile   string                    `json:"audioFile"`
	QueuedAt    time.Time                 `json:"queuedAt"`
	CompletedAt time.Time                 `json:"completedAt,omitempty"`
	Events      []session.TranscriptEvent `json:"events"`
	Text        string                    `json:"text"`
	Error       string                    `json:"error,omitempty"`
}

// transcriptionJob is one queued audio file for the worker pool.
type transcriptionJob struct {
	ID       string
	FilePath string
	QueuedAt time.Time
}

// WebSocketMessage is one live-feed frame pushed to subscribers.
type WebSocketMessage struct {
	Type         string                   `json:"type"`
	TranscriptID string                   `json:"transcriptId"`
	AudioFile    string                   `json:"audioFile"`
	Timestamp    time.Time                `json:"timestamp"`
	Event        *session.TranscriptEvent `json:"event,omitempty"`
	Transcript   *Transcript              `json:"transcript,omitempty"`
}
