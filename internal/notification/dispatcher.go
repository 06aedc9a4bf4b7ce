package notification

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"factory-floor-backend/internal/changefeed"
	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/statusmap"
	"factory-floor-backend/internal/store"
)

// Dispatcher turns row-level change notifications into notification jobs.
// Notifications carry keys only, so every decision re-reads authoritative
// state from the store.
type Dispatcher struct {
	store store.Store
	pool  *WorkerPool

	// seen deduplicates: a session close or a stoppage interval may ripple
	// through several row changes, but subscribers get one push per cause.
	seen *cache.Cache
}

func NewDispatcher(s store.Store, pool *WorkerPool) *Dispatcher {
	return &Dispatcher{
		store: s,
		pool:  pool,
		seen:  cache.New(10*time.Minute, 30*time.Minute),
	}
}

// Watch consumes the change feed until the context is cancelled or the feed
// shuts down.
func (d *Dispatcher) Watch(ctx context.Context, feed changefeed.Feed) {
	sessions := feed.Subscribe(changefeed.ResourceSessions)
	defer sessions.Close()
	intervals := feed.Subscribe(changefeed.ResourceIntervals)
	defer intervals.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sessions.C():
			if !ok {
				return
			}
			d.onSessionChange(ctx, n)
		case n, ok := <-intervals.C():
			if !ok {
				return
			}
			d.onIntervalChange(ctx, n)
		}
	}
}

func (d *Dispatcher) onSessionChange(ctx context.Context, n changefeed.Notification) {
	if n.Event != changefeed.EventUpdate {
		return
	}
	session, err := d.store.GetSession(ctx, n.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("notification: re-reading session %s: %v", n.SessionID, err)
		return
	}
	if session.Status != model.SessionCompleted {
		return
	}
	if d.seen.Add("session:"+session.ID, struct{}{}, cache.DefaultExpiration) != nil {
		return
	}
	d.pool.Dispatch(Job{
		Kind:      JobSessionCompleted,
		StationID: session.StationID,
		SessionID: session.ID,
	})
}

func (d *Dispatcher) onIntervalChange(ctx context.Context, n changefeed.Notification) {
	if n.Event != changefeed.EventInsert || n.SessionID == "" {
		return
	}
	session, err := d.store.GetSession(ctx, n.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("notification: re-reading session %s: %v", n.SessionID, err)
		return
	}

	ivs, err := d.store.IntervalsForSession(ctx, n.SessionID)
	if err != nil {
		log.Printf("notification: re-reading intervals of %s: %v", n.SessionID, err)
		return
	}
	var inserted *model.StatusInterval
	for i := range ivs {
		if strconv.FormatInt(ivs[i].ID, 10) == n.Key {
			inserted = &ivs[i]
			break
		}
	}
	if inserted == nil {
		return
	}

	defs, err := d.store.StatusDefinitions(ctx)
	if err != nil {
		log.Printf("notification: loading status definitions: %v", err)
		return
	}
	def, ok := statusmap.New(defs).Definition(session.StationID, inserted.StatusID)
	if !ok || def.MachineState != model.StateStoppage {
		return
	}
	if d.seen.Add("interval:"+n.Key, struct{}{}, cache.DefaultExpiration) != nil {
		return
	}
	d.pool.Dispatch(Job{
		Kind:      JobStoppageStarted,
		StationID: session.StationID,
		SessionID: session.ID,
	})
}
