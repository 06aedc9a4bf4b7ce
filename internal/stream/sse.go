package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SetSSEHeaders prepares a response for a long-lived text event stream.
// no-transform keeps intermediary proxies from buffering the stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Sink is the transport half of a channel: one frame out per call.
type Sink interface {
	Send(ev Event) error
	Comment(text string) error
}

// sseSink writes server-sent-event frames to an HTTP response. Writes are
// serialized; the heartbeat and the event loop may race otherwise.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink wraps a response writer. The writer must support flushing;
// net/http's default one does.
func NewSSESink(w http.ResponseWriter) (Sink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &sseSink{w: w, flusher: flusher}, nil
}

func (s *sseSink) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
