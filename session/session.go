package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is the lifecycle of one streaming session.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateStreaming
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateStreaming:
		return "streaming"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ChunkSource yields protocol-sized audio chunks in production order.
// audio.Chunker satisfies it.
type ChunkSource interface {
	Next() ([]byte, error)
}

// Session drives one bidirectional recognition exchange: audio chunks out,
// transcript events in. The exchange runs on a background goroutine so the
// caller never blocks on audio or network I/O; Stop requests a cooperative
// shutdown and Wait blocks until the exchange has fully wound down.
type Session struct {
	recognizer Recognizer
	chunks     ChunkSource
	sink       Sink

	state atomic.Int32
	stop  atomic.Bool
	done  chan struct{}
	err   error

	chunksSent      atomic.Uint64
	eventsDelivered atomic.Uint64
}

// New builds a session in the Idle state. Nothing happens until Start.
func New(recognizer Recognizer, chunks ChunkSource, sink Sink) *Session {
	s := &Session{
		recognizer: recognizer,
		chunks:     chunks,
		sink:       sink,
		done:       make(chan struct{}),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stop requests a shutdown. It is asynchronous: the exchange finishes the
// chunk in flight, closes the send side, and drains remaining results. No
// new chunk is sent once the signal has been observed.
func (s *Session) Stop() {
	s.stop.Store(true)
}

// Done is closed once the exchange has fully wound down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the exchange finishes and returns the fatal error, if
// any. A clean stop or source exhaustion returns nil.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// ChunksSent reports how many audio chunks were forwarded to the service.
func (s *Session) ChunksSent() uint64 {
	return s.chunksSent.Load()
}

// EventsDelivered reports how many transcript events reached the sink.
func (s *Session) EventsDelivered() uint64 {
	return s.eventsDelivered.Load()
}

// Start opens the recognition stream and launches the background exchange.
// An error during initialization aborts the start with no partial state:
// the session returns to Idle and Start may be retried.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateInitializing)) {
		return fmt.Errorf("session already started (state %s)", s.State())
	}

	stream, err := s.recognizer.Open(ctx)
	if err != nil {
		s.state.Store(int32(StateIdle))
		return fmt.Errorf("start session: %w", err)
	}

	s.state.Store(int32(StateStreaming))
	slog.Debug("Session streaming")

	go s.run(stream)
	return nil
}

func (s *Session) run(stream Stream) {
	sendDone := make(chan error, 1)
	go s.sendPump(stream, sendDone)

	var failure error
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			failure = err
			break
		}
		s.deliver(resp)
	}

	if failure != nil {
		s.state.Store(int32(StateFailed))
	} else {
		s.state.Store(int32(StateStopping))
	}

	// The send pump observes the dead stream (or source exhaustion) on its
	// own; teardown waits for it rather than interrupting a blocked read.
	sendErr := <-sendDone
	if failure == nil && sendErr != nil {
		failure = sendErr
		s.state.Store(int32(StateFailed))
	}

	if failure != nil {
		s.err = failure
		slog.Error("Session failed",
			"error", failure,
			"chunksSent", s.chunksSent.Load(),
			"events", s.eventsDelivered.Load())
	} else {
		s.state.Store(int32(StateStopped))
		slog.Info("Session stopped",
			"chunksSent", s.chunksSent.Load(),
			"events", s.eventsDelivered.Load())
	}
	close(s.done)
}

// deliver emits at most one transcript event per response: the first
// alternative of the first populated result, matching the service's
// ordering of results by stability. Responses with no populated result are
// the service's keep-alive and are dropped silently.
func (s *Session) deliver(resp *Response) {
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		s.sink.Deliver(TranscriptEvent{
			Timestamp:  time.Now(),
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Final:      result.Final,
		})
		s.eventsDelivered.Add(1)
		return
	}
}

// sendPump forwards chunks strictly in production order until the source
// is exhausted, the stop signal is observed, or the stream dies. It is
// never cancelled mid-chunk: a chunk pulled before the signal was observed
// is still delivered.
func (s *Session) sendPump(stream Stream, done chan<- error) {
	for {
		if s.stop.Load() {
			slog.Debug("Stop signal observed", "chunksSent", s.chunksSent.Load())
			break
		}

		chunk, err := s.chunks.Next()
		if err == io.EOF {
			slog.Debug("Audio source exhausted", "chunksSent", s.chunksSent.Load())
			break
		}
		if err != nil {
			stream.CloseSend()
			done <- err
			return
		}

		if err := stream.Send(chunk); err != nil {
			stream.CloseSend()
			done <- err
			return
		}
		s.chunksSent.Add(1)
	}

	done <- stream.CloseSend()
}

// Run is a convenience for callers without their own shutdown plumbing:
// it starts the session, stops it when ctx is cancelled, and waits.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	err := s.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
