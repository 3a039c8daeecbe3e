package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream scripts the service side of an exchange. Recv hands out the
// scripted responses, then blocks until the send side is closed (or fails
// immediately when failAfterScript is set).
type fakeStream struct {
	mu   sync.Mutex
	sent [][]byte
	idx  int

	responses       []*Response
	failAfterScript error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(responses ...*Response) *fakeStream {
	return &fakeStream{
		responses: responses,
		closed:    make(chan struct{}),
	}
}

func (f *fakeStream) Send(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	f.sent = append(f.sent, buf)
	return nil
}

func (f *fakeStream) Recv() (*Response, error) {
	f.mu.Lock()
	if f.idx < len(f.responses) {
		resp := f.responses[f.idx]
		f.idx++
		f.mu.Unlock()
		return resp, nil
	}
	f.mu.Unlock()

	if f.failAfterScript != nil {
		return nil, f.failAfterScript
	}

	<-f.closed
	return nil, io.EOF
}

func (f *fakeStream) CloseSend() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeStream) sentChunks() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeRecognizer struct {
	stream  *fakeStream
	openErr error
	closed  bool
}

func (f *fakeRecognizer) Open(ctx context.Context) (Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

func (f *fakeRecognizer) Close() error {
	f.closed = true
	return nil
}

// byteChunks serves a fixed set of chunks.
type byteChunks struct {
	mu     sync.Mutex
	chunks [][]byte
	idx    int
}

func (b *byteChunks) Next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.idx >= len(b.chunks) {
		return nil, io.EOF
	}
	chunk := b.chunks[b.idx]
	b.idx++
	return chunk, nil
}

// collectorSink records delivered events in order.
type collectorSink struct {
	mu     sync.Mutex
	events []TranscriptEvent
}

func (c *collectorSink) Deliver(event TranscriptEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *collectorSink) all() []TranscriptEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TranscriptEvent, len(c.events))
	copy(out, c.events)
	return out
}

func interimResp(text string, confidence float32) *Response {
	return &Response{Results: []Result{{
		Alternatives: []Alternative{{Transcript: text, Confidence: confidence}},
	}}}
}

func finalResp(text string, confidence float32) *Response {
	return &Response{Results: []Result{{
		Alternatives: []Alternative{{Transcript: text, Confidence: confidence}},
		Final:        true,
	}}}
}

func waitFor(t *testing.T, sess *Session) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish in time")
		return nil
	}
}

func TestSessionInterimThenFinal(t *testing.T) {
	stream := newFakeStream(
		&Response{}, // keep-alive, no results
		interimResp("hi", 0.9),
		finalResp("hi there", 0.95),
	)
	rec := &fakeRecognizer{stream: stream}
	sink := &collectorSink{}
	sess := New(rec, &byteChunks{chunks: [][]byte{make([]byte, 2048)}}, sink)

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))

	events := sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "hi", events[0].Text)
	assert.False(t, events[0].Final)
	assert.InDelta(t, 0.9, events[0].Confidence, 1e-6)
	assert.Equal(t, "hi there", events[1].Text)
	assert.True(t, events[1].Final)
	assert.InDelta(t, 0.95, events[1].Confidence, 1e-6)

	assert.Equal(t, StateStopped, sess.State())
	assert.Equal(t, uint64(2), sess.EventsDelivered())
}

func TestSessionPreservesArrivalOrder(t *testing.T) {
	var responses []*Response
	for i := 0; i < 50; i++ {
		responses = append(responses, interimResp(fmt.Sprintf("segment %d", i), 0.5))
	}
	stream := newFakeStream(responses...)
	sink := &collectorSink{}
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{}, sink)

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))

	events := sink.all()
	require.Len(t, events, 50)
	for i, event := range events {
		assert.Equal(t, fmt.Sprintf("segment %d", i), event.Text)
	}
}

func TestSessionDropsEmptyResponses(t *testing.T) {
	stream := newFakeStream(
		&Response{},
		&Response{Results: []Result{{}}}, // result with no alternatives
		&Response{},
	)
	sink := &collectorSink{}
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{}, sink)

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))

	assert.Empty(t, sink.all())
	assert.Equal(t, uint64(0), sess.EventsDelivered())
}

func TestSessionSendsChunksInOrder(t *testing.T) {
	chunks := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	stream := newFakeStream()
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{chunks: chunks}, &collectorSink{})

	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))

	assert.Equal(t, chunks, stream.sentChunks())
	assert.Equal(t, uint64(3), sess.ChunksSent())
	assert.Equal(t, StateStopped, sess.State())
}

func TestSessionStopBeforeFirstChunk(t *testing.T) {
	stream := newFakeStream()
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{chunks: [][]byte{make([]byte, 2048)}}, &collectorSink{})

	sess.Stop()
	require.NoError(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))

	assert.Equal(t, StateStopped, sess.State())
	assert.Empty(t, stream.sentChunks())
	assert.Equal(t, uint64(0), sess.ChunksSent())
	assert.Equal(t, uint64(0), sess.EventsDelivered())
}

func TestSessionStopWhileStreaming(t *testing.T) {
	// Unbounded source: the session only ends because of the stop signal.
	unbounded := &unboundedChunks{}
	stream := newFakeStream()
	sess := New(&fakeRecognizer{stream: stream}, unbounded, &collectorSink{})

	require.NoError(t, sess.Start(context.Background()))
	assert.Equal(t, StateStreaming, sess.State())

	sess.Stop()
	require.NoError(t, waitFor(t, sess))
	assert.Equal(t, StateStopped, sess.State())
}

type unboundedChunks struct{}

func (u *unboundedChunks) Next() ([]byte, error) {
	time.Sleep(time.Millisecond)
	return make([]byte, 2048), nil
}

func TestSessionTransportFailure(t *testing.T) {
	stream := newFakeStream(interimResp("hello", 0.5))
	stream.failAfterScript = fmt.Errorf("%w: connection reset", ErrTransport)
	sink := &collectorSink{}
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{}, sink)

	require.NoError(t, sess.Start(context.Background()))
	err := waitFor(t, sess)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateFailed, sess.State())
	// Events received before the failure were still delivered.
	assert.Len(t, sink.all(), 1)
}

func TestSessionInitializationFailure(t *testing.T) {
	rec := &fakeRecognizer{openErr: errors.New("dial refused")}
	sess := New(rec, &byteChunks{}, &collectorSink{})

	err := sess.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionDoubleStart(t *testing.T) {
	stream := newFakeStream()
	sess := New(&fakeRecognizer{stream: stream}, &byteChunks{}, &collectorSink{})

	require.NoError(t, sess.Start(context.Background()))
	assert.Error(t, sess.Start(context.Background()))
	require.NoError(t, waitFor(t, sess))
}

func TestSessionRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := newFakeStream()
	sess := New(&fakeRecognizer{stream: stream}, &unboundedChunks{}, &collectorSink{})

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateStopped, sess.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "failed", StateFailed.String())
}
