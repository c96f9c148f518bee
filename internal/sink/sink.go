// Package sink provides the single output surface engine runs stream into.
// A Sink is constructed explicitly and injected into the supervisor; there
// is no package-level instance. Besides the console writer it can carry a
// WebSocket hub so external clients (an editor integration, a dashboard)
// can subscribe to the stream of a run.
package sink

import (
	"fmt"
	"io"
	"sync"
)

// Stream identifies which process stream a line came from.
type Stream string

const (
	// StreamStdout is the engine's standard output.
	StreamStdout Stream = "stdout"
	// StreamStderr is the engine's standard error.
	StreamStderr Stream = "stderr"
	// StreamStatus carries supervisor lifecycle notices.
	StreamStatus Stream = "status"
)

// maxBufferedLines caps the lines retained for later inspection so a
// chatty engine cannot exhaust memory.
const maxBufferedLines = 10000

// Sink receives streamed engine output.
type Sink struct {
	mu        sync.Mutex
	out       io.Writer
	hub       *Hub
	lines     []string
	truncated bool
	closed    bool
}

// New creates a sink writing to out. A nil writer discards console output
// (used by single-rule mode, which buffers silently).
func New(out io.Writer) *Sink {
	return &Sink{out: out}
}

// AttachHub connects a WebSocket hub; every subsequent line is also
// broadcast to its subscribers.
func (s *Sink) AttachHub(h *Hub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hub = h
}

// WriteLine records one line of engine output and forwards it to the
// console writer and any attached hub.
func (s *Sink) WriteLine(runID string, stream Stream, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if len(s.lines) < maxBufferedLines {
		s.lines = append(s.lines, line)
	} else if !s.truncated {
		s.lines = append(s.lines, "[... output truncated: limit reached ...]")
		s.truncated = true
	}

	if s.out != nil {
		fmt.Fprintln(s.out, line)
	}
	if s.hub != nil {
		s.hub.Broadcast(StreamMessage{
			RunID:  runID,
			Stream: string(stream),
			Line:   line,
		})
	}
}

// Lines returns a copy of the buffered output.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

// Reset clears buffered output so the sink can serve another run.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = nil
	s.truncated = false
}

// Close shuts the sink down. Further writes are dropped and an attached
// hub is stopped.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.hub != nil {
		s.hub.Stop()
		s.hub = nil
	}
	return nil
}
