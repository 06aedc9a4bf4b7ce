package stream

import (
	"context"
	"errors"

	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/snapshot"
	"factory-floor-backend/internal/store"
)

// NewActiveSessionsChannel watches the set of all active sessions. Sessions
// entering the set surface as inserts, changed ones as updates, and sessions
// leaving it (completed, aborted, deleted) as deletes.
func NewActiveSessionsChannel(sink Sink, feed changefeed.Feed, builder *snapshot.Builder, opts Options) *Channel {
	w := &setWatcher{
		build: func(ctx context.Context) ([]snapshot.SessionSnapshot, error) {
			return builder.BuildActive(ctx)
		},
		code: CodeSessionsChannelClosed,
	}
	return newChannel(sink, feed, w, opts)
}

// NewStationProgressChannel watches live job progress on one station's
// pipeline. Same diffing as the active-sessions watch, scoped to a station.
func NewStationProgressChannel(sink Sink, feed changefeed.Feed, builder *snapshot.Builder, stationID int64, opts Options) *Channel {
	w := &setWatcher{
		build: func(ctx context.Context) ([]snapshot.SessionSnapshot, error) {
			return builder.BuildStationActive(ctx, stationID)
		},
		code: CodeChannelClosed,
	}
	return newChannel(sink, feed, w, opts)
}

// NewSessionDetailChannel watches one session's full detail: the session
// row, its status intervals, and its reports. Any of the three sub-feeds
// triggers a debounced full rebuild. The session disappearing is reported as
// a delete event, never as an error.
func NewSessionDetailChannel(sink Sink, feed changefeed.Feed, builder *snapshot.Builder, sessionID string, opts Options) *Channel {
	w := &detailWatcher{builder: builder, sessionID: sessionID}
	return newChannel(sink, feed, w, opts)
}

// setWatcher maintains a keyed diff of a session set across rebuilds.
type setWatcher struct {
	build func(ctx context.Context) ([]snapshot.SessionSnapshot, error)
	code  string

	// known is the id set as of the last emit; only Run's goroutine
	// touches it.
	known map[string]struct{}
}

func (w *setWatcher) resources() []string {
	return []string{changefeed.ResourceSessions, changefeed.ResourceIntervals}
}

func (w *setWatcher) relevant(changefeed.Notification) bool { return true }

func (w *setWatcher) closedCode() string { return w.code }

func (w *setWatcher) initial(ctx context.Context) ([]Event, bool, error) {
	snaps, err := w.build(ctx)
	if err != nil {
		return nil, false, err
	}
	w.known = make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		w.known[s.SessionID] = struct{}{}
	}
	return []Event{Initial(snaps)}, false, nil
}

func (w *setWatcher) rebuild(ctx context.Context, dirty map[string]struct{}) ([]Event, bool, error) {
	snaps, err := w.build(ctx)
	if err != nil {
		return nil, false, err
	}

	current := make(map[string]struct{}, len(snaps))
	var events []Event
	for _, s := range snaps {
		current[s.SessionID] = struct{}{}
		if _, ok := w.known[s.SessionID]; !ok {
			events = append(events, Insert(s))
		} else if _, touched := dirty[s.SessionID]; touched {
			events = append(events, Update(s))
		}
	}
	for id := range w.known {
		if _, ok := current[id]; !ok {
			events = append(events, Delete(id))
		}
	}

	w.known = current
	return events, false, nil
}

// detailWatcher rebuilds one session's snapshot whole on every wakeup.
type detailWatcher struct {
	builder   *snapshot.Builder
	sessionID string
}

func (w *detailWatcher) resources() []string {
	return []string{
		changefeed.ResourceSessions,
		changefeed.ResourceIntervals,
		changefeed.ResourceReports,
	}
}

// relevant drops the firehose down to this session's rows.
func (w *detailWatcher) relevant(n changefeed.Notification) bool {
	return n.SessionID == w.sessionID
}

func (w *detailWatcher) closedCode() string { return CodeChannelClosed }

func (w *detailWatcher) initial(ctx context.Context) ([]Event, bool, error) {
	snap, err := w.builder.Build(ctx, w.sessionID)
	if errors.Is(err, store.ErrNotFound) {
		// Watching a session that is already gone is steady-state, not a
		// failure: say so and close.
		return []Event{Delete(w.sessionID)}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []Event{Initial([]snapshot.SessionSnapshot{*snap})}, false, nil
}

func (w *detailWatcher) rebuild(ctx context.Context, _ map[string]struct{}) ([]Event, bool, error) {
	snap, err := w.builder.Build(ctx, w.sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return []Event{Delete(w.sessionID)}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []Event{Update(*snap)}, false, nil
}
