package session

import (
	"context"
	"errors"
)

var (
	// ErrTransport marks a network or service failure mid-session. It is
	// fatal to the current session only; there is no automatic reconnect.
	ErrTransport = errors.New("session: transport failure")

	// ErrCredentials marks missing or rejected service credentials. It
	// prevents a session from starting at all.
	ErrCredentials = errors.New("session: missing or invalid credentials")
)

// Alternative is one candidate transcription of an utterance.
type Alternative struct {
	Transcript string
	Confidence float32
}

// Result groups the alternatives for one utterance span. Final results
// supersede the interim results that preceded them.
type Result struct {
	Alternatives []Alternative
	Final        bool
}

// Response is a single message from the recognition service. A response
// with no results (or results with no alternatives) means the service is
// still listening; it is not an error.
type Response struct {
	Results []Result
}

// Stream is one bidirectional exchange with the recognition service. The
// session's background goroutine owns the stream exclusively for its
// lifetime. Send and Recv may be called concurrently with each other;
// Recv returns io.EOF once the service has drained all results after
// CloseSend.
type Stream interface {
	Send(chunk []byte) error
	Recv() (*Response, error)
	CloseSend() error
}

// Recognizer opens recognition streams against a remote service. One
// recognizer may serve several sequential sessions.
type Recognizer interface {
	Open(ctx context.Context) (Stream, error)
	Close() error
}
