// Package reconcile keeps a client-side mirror of a session stream. It is
// the consuming half of the push protocol: feed it every event a channel
// delivers, in order, and read a consistent keyed collection back out.
package reconcile

import (
	"sort"
	"sync"

	"factory-floor-backend/internal/snapshot"
	"factory-floor-backend/internal/stream"
)

// Reconciler folds an ordered stream of events into a keyed session
// collection. It is safe for one goroutine to apply events while others
// read.
type Reconciler struct {
	mu       sync.RWMutex
	ready    bool
	lastErr  string
	sessions map[string]snapshot.SessionSnapshot
}

func New() *Reconciler {
	return &Reconciler{sessions: make(map[string]snapshot.SessionSnapshot)}
}

// Apply folds one event into the collection. Inserts and updates are both
// upserts: a missed or reordered frame must never wedge the mirror, and the
// payload is authoritative either way.
func (r *Reconciler) Apply(ev stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case stream.EventInitial:
		r.sessions = make(map[string]snapshot.SessionSnapshot, len(ev.Sessions))
		for _, s := range ev.Sessions {
			r.sessions[s.SessionID] = s
		}
		r.ready = true
		r.lastErr = ""

	case stream.EventInsert, stream.EventUpdate:
		if ev.Session != nil {
			r.sessions[ev.Session.SessionID] = *ev.Session
		}

	case stream.EventDelete:
		delete(r.sessions, ev.SessionID)

	case stream.EventError:
		// The server closes the channel after an error frame; whatever we
		// hold may be stale until the next initial arrives.
		r.ready = false
		r.lastErr = ev.Message
	}
}

// Ready reports whether the mirror has a current initial snapshot and no
// terminal error since.
func (r *Reconciler) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// LastError returns the code of the most recent error frame, cleared by the
// next initial snapshot.
func (r *Reconciler) LastError() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Get returns one session by id.
func (r *Reconciler) Get(sessionID string) (snapshot.SessionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// Len returns the number of sessions held.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns the collection ordered by start time, oldest first, with
// the id as tie-break so the order is stable across calls.
func (r *Reconciler) Sessions() []snapshot.SessionSnapshot {
	r.mu.RLock()
	out := make([]snapshot.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}
