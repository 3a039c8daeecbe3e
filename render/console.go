package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/Ernesto385291/vexa-googlestt/session"
)

const (
	ansiClearLine = "\r\033[K"
	ansiYellow    = "\033[33m"
	ansiGreen     = "\033[32m"
	ansiReset     = "\033[0m"
)

// Console renders transcript events to a terminal. Interim events rewrite
// the current line in place; final events commit it and move on. With
// color disabled the ANSI sequences are dropped but the replace-then-commit
// behavior stays.
type Console struct {
	w     io.Writer
	color bool

	mu             sync.Mutex
	interimPending bool
	interims       int
	finals         int
}

// NewConsole writes to w. Enable color for interactive terminals.
func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

func (c *Console) Deliver(event session.TranscriptEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timestamp := event.Timestamp.Format("15:04:05")
	conf := "(N/A)"
	if event.Confidence > 0 {
		conf = fmt.Sprintf("(%.2f)", event.Confidence)
	}

	if event.Final {
		c.finals++
		line := fmt.Sprintf("[%s] FINAL %s: %s", timestamp, conf, event.Text)
		if c.color {
			line = ansiGreen + line + ansiReset
		}
		fmt.Fprintf(c.w, "%s%s\n", ansiClearLine, line)
		c.interimPending = false
		return
	}

	c.interims++
	line := fmt.Sprintf("[%s] INTERIM %s: %s", timestamp, conf, event.Text)
	if c.color {
		line = ansiYellow + line + ansiReset
	}
	fmt.Fprintf(c.w, "%s%s", ansiClearLine, line)
	c.interimPending = true
}

// Flush terminates a dangling interim line so the shell prompt lands on a
// fresh line. Call once after the session ends.
func (c *Console) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interimPending {
		fmt.Fprintln(c.w)
		c.interimPending = false
	}
}

// Counts reports how many interim and final events were rendered.
func (c *Console) Counts() (interims, finals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interims, c.finals
}
