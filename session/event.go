package session

import "time"

// TranscriptEvent is one recognition result surfaced by a session.
// Interim events replace the previous interim display for the same
// utterance; a final event commits it permanently. Timestamp carries Go's
// monotonic clock reading, so elapsed times between events are reliable.
type TranscriptEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	Confidence float32   `json:"confidence"`
	Final      bool      `json:"final"`
}

// Sink consumes transcript events strictly in arrival order. Deliver is
// called from the session's background goroutine; marshaling onto a UI
// thread is the sink's concern. Sinks must not reorder, drop, or
// deduplicate events.
type Sink interface {
	Deliver(event TranscriptEvent)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(TranscriptEvent)

func (f SinkFunc) Deliver(event TranscriptEvent) {
	f(event)
}

// Multi fans an event out to several sinks, preserving arrival order
// within each.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(event TranscriptEvent) {
		for _, s := range sinks {
			s.Deliver(event)
		}
	})
}
