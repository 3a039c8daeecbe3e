package scribe

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ernesto385291/vexa-googlestt/audio"
	"github.com/Ernesto385291/vexa-googlestt/session"
)

// scriptedStream replays canned responses, then signals end of stream once
// the send side is closed.
type scriptedStream struct {
	mu        sync.Mutex
	responses []*session.Response
	idx       int
	sent      int
	closed    chan struct{}
	closeOnce sync.Once
}

func newScriptedStream(responses ...*session.Response) *scriptedStream {
	return &scriptedStream{responses: responses, closed: make(chan struct{})}
}

func (s *scriptedStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *scriptedStream) Recv() (*session.Response, error) {
	s.mu.Lock()
	if s.idx < len(s.responses) {
		resp := s.responses[s.idx]
		s.idx++
		s.mu.Unlock()
		return resp, nil
	}
	s.mu.Unlock()
	<-s.closed
	return nil, io.EOF
}

func (s *scriptedStream) CloseSend() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type scriptedRecognizer struct {
	responses []*session.Response
}

func (r *scriptedRecognizer) Open(ctx context.Context) (session.Stream, error) {
	return newScriptedStream(r.responses...), nil
}

func (r *scriptedRecognizer) Close() error { return nil }

func writeWavFixture(t *testing.T, dir string, size int) string {
	t.Helper()
	path := filepath.Join(dir, "sample.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, audio.WriteWavHeader(f, uint32(size)))
	_, err = f.Write(make([]byte, size))
	require.NoError(t, err)
	return path
}

func newTestScribe(t *testing.T, responses ...*session.Response) *Scribe {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WatchDir = t.TempDir()

	s, err := New(cfg)
	require.NoError(t, err)
	s.recognizer = &scriptedRecognizer{responses: responses}
	return s
}

func TestProcessJobRecordsTranscript(t *testing.T) {
	s := newTestScribe(t,
		&session.Response{}, // keep-alive
		&session.Response{Results: []session.Result{{
			Alternatives: []session.Alternative{{Transcript: "buenos días", Confidence: 0.91}},
			Final:        true,
		}}},
	)

	path := writeWavFixture(t, s.config.WatchDir, 4096)
	job := transcriptionJob{ID: "job-1", FilePath: path, QueuedAt: time.Now()}

	require.NoError(t, s.processJob(context.Background(), job))

	value, ok := s.transcripts.Load("job-1")
	require.True(t, ok)
	transcript := value.(*Transcript)

	assert.Equal(t, "sample.wav", transcript.AudioFile)
	assert.Equal(t, "buenos días", transcript.Text)
	assert.Empty(t, transcript.Error)
	require.Len(t, transcript.Events, 1)
	assert.True(t, transcript.Events[0].Final)
	assert.False(t, transcript.CompletedAt.IsZero())
}

func TestProcessJobUnsupportedFormat(t *testing.T) {
	s := newTestScribe(t)

	// Not a WAV container at all.
	path := filepath.Join(s.config.WatchDir, "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0644))

	job := transcriptionJob{ID: "job-2", FilePath: path, QueuedAt: time.Now()}
	err := s.processJob(context.Background(), job)
	require.Error(t, err)

	// The failure is still recorded so the API can report it.
	value, ok := s.transcripts.Load("job-2")
	require.True(t, ok)
	assert.NotEmpty(t, value.(*Transcript).Error)
}

func TestIsWavFile(t *testing.T) {
	assert.True(t, isWavFile("recording.wav"))
	assert.True(t, isWavFile("RECORDING.WAV"))
	assert.False(t, isWavFile("recording.wav.tmp"))
	assert.False(t, isWavFile("notes.txt"))
}

func TestEnqueueAfterStopDropsJob(t *testing.T) {
	s := newTestScribe(t)
	require.NoError(t, s.Stop(context.Background()))

	// A file event landing after shutdown is dropped, never sent on the
	// closed queue.
	assert.NotPanics(t, func() {
		s.enqueue(filepath.Join(s.config.WatchDir, "late.wav"))
	})

	_, open := <-s.queue
	assert.False(t, open)
}

func TestEnqueueGeneratesDistinctIDs(t *testing.T) {
	s := newTestScribe(t)

	s.enqueue(filepath.Join(s.config.WatchDir, "a.wav"))
	s.enqueue(filepath.Join(s.config.WatchDir, "b.wav"))

	first := <-s.queue
	second := <-s.queue
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "a.wav", filepath.Base(first.FilePath))
	assert.Equal(t, "b.wav", filepath.Base(second.FilePath))
}
