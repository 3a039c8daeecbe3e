package scribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ernesto385291/vexa-googlestt/audio"
	"github.com/Ernesto385291/vexa-googlestt/session"
)

func (s *Scribe) worker(ctx context.Context) {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		s.workers.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker context cancelled")
			return

		case job, ok := <-s.queue:
			if !ok {
				slog.Debug("Worker queue closed")
				return
			}

			if err := s.processJob(ctx, job); err != nil {
				slog.Error("Failed to transcribe audio file",
					"error", err,
					"file", job.FilePath,
					"id", job.ID)
			}
		}
	}
}

func (s *Scribe) processJob(ctx context.Context, job transcriptionJob) error {
	slog.Info("Transcribing audio file",
		"file", job.FilePath,
		"id", job.ID)

	transcript := &Transcript{
		ID:        job.ID,
		AudioFile: filepath.Base(job.FilePath),
		QueuedAt:  job.QueuedAt,
		Events:    make([]session.TranscriptEvent, 0),
	}

	src, err := audio.OpenFile(job.FilePath)
	if err != nil {
		transcript.CompletedAt = time.Now()
		transcript.Error = err.Error()
		s.transcripts.Store(job.ID, transcript)
		return fmt.Errorf("open audio file: %w", err)
	}
	defer src.Close()

	collector := &transcriptCollector{transcript: transcript}
	broadcast := s.broadcastSink(job.ID, transcript.AudioFile)

	chunker := audio.NewChunker(src, s.config.ChunkBytes)
	sess := session.New(s.recognizer, chunker, session.Multi(collector, broadcast))
	if err := sess.Run(ctx); err != nil {
		transcript.CompletedAt = time.Now()
		transcript.Error = err.Error()
		s.transcripts.Store(job.ID, transcript)
		return fmt.Errorf("recognition session: %w", err)
	}

	transcript.CompletedAt = time.Now()
	transcript.Text = collector.text()
	s.transcripts.Store(job.ID, transcript)

	s.broadcastMessage(WebSocketMessage{
		Type:         "completed",
		TranscriptID: job.ID,
		AudioFile:    transcript.AudioFile,
		Timestamp:    transcript.CompletedAt,
		Transcript:   transcript,
	})

	slog.Info("Successfully transcribed audio file",
		"id", job.ID,
		"file", transcript.AudioFile,
		"events", len(transcript.Events),
		"text", transcript.Text)

	return nil
}

// transcriptCollector appends delivered events to the transcript record.
type transcriptCollector struct {
	mu         sync.Mutex
	transcript *Transcript
}

func (c *transcriptCollector) Deliver(event session.TranscriptEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Events = append(c.transcript.Events, event)
}

func (c *transcriptCollector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := ""
	for _, event := range c.transcript.Events {
		if !event.Final {
			continue
		}
		if out != "" {
			out += " "
		}
		out += event.Text
	}
	return out
}

// broadcastSink pushes each event to the live feed as it arrives.
func (s *Scribe) broadcastSink(transcriptID, audioFile string) session.Sink {
	return session.SinkFunc(func(event session.TranscriptEvent) {
		s.broadcastMessage(WebSocketMessage{
			Type:         "event",
			TranscriptID: transcriptID,
			AudioFile:    audioFile,
			Timestamp:    event.Timestamp,
			Event:        &event,
		})
	})
}

func (s *Scribe) broadcastMessage(msg WebSocketMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to marshal live feed message", "error", err)
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, conn := range s.subscribers {
		select {
		case conn.send <- data:
		default:
			slog.Warn("Subscriber channel full, dropping message",
				"remoteAddr", conn.conn.RemoteAddr())
		}
	}
}
