package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factory-floor-backend/internal/changefeed"
)

// recordingSink captures frames in memory and signals each send.
type recordingSink struct {
	mu       sync.Mutex
	events   []Event
	comments []string
	sent     chan Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sent: make(chan Event, 32)}
}

func (s *recordingSink) Send(ev Event) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.sent <- ev
	return nil
}

func (s *recordingSink) Comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, text)
	return nil
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) waitFor(t *testing.T, eventType string) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.sent:
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q frame", eventType)
		}
	}
}

// stubWatcher drives a channel without any backing store.
type stubWatcher struct {
	mu       sync.Mutex
	rebuilds int

	initialErr   error
	initialDone  bool
	rebuildErr   error
	rebuildEvent Event
	code         string
}

func (w *stubWatcher) resources() []string {
	return []string{changefeed.ResourceSessions}
}

func (w *stubWatcher) relevant(changefeed.Notification) bool { return true }

func (w *stubWatcher) closedCode() string { return w.code }

func (w *stubWatcher) initial(context.Context) ([]Event, bool, error) {
	if w.initialErr != nil {
		return nil, false, w.initialErr
	}
	return []Event{Initial(nil)}, w.initialDone, nil
}

func (w *stubWatcher) rebuild(context.Context, map[string]struct{}) ([]Event, bool, error) {
	w.mu.Lock()
	w.rebuilds++
	w.mu.Unlock()
	if w.rebuildErr != nil {
		return nil, false, w.rebuildErr
	}
	return []Event{w.rebuildEvent}, false, nil
}

func (w *stubWatcher) rebuildCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rebuilds
}

// countingFeed wraps a Bus and remembers every subscription it hands out.
type countingFeed struct {
	bus *changefeed.Bus

	mu   sync.Mutex
	subs []*changefeed.Subscription
}

func (f *countingFeed) Subscribe(resource string) *changefeed.Subscription {
	sub := f.bus.Subscribe(resource)
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

func (f *countingFeed) handedOut() []*changefeed.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*changefeed.Subscription, len(f.subs))
	copy(out, f.subs)
	return out
}

func runChannel(sink Sink, feed changefeed.Feed, w watcher, opts Options) (cancel context.CancelFunc, done chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := newChannel(sink, feed, w, opts)
	done = make(chan struct{})
	go func() {
		defer close(done)
		ch.Run(ctx)
	}()
	return cancel, done
}

func TestChannelDebounceCoalescesBursts(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{rebuildEvent: Update(sessionSnap("s-1")), code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{Debounce: 30 * time.Millisecond, Heartbeat: time.Hour})
	defer cancel()

	sink.waitFor(t, EventInitial)

	// A burst well inside one debounce window: one rebuild, one frame.
	for i := 0; i < 5; i++ {
		bus.Publish(changefeed.Notification{
			Resource:  changefeed.ResourceSessions,
			Event:     changefeed.EventUpdate,
			Key:       "s-1",
			SessionID: "s-1",
		})
	}
	sink.waitFor(t, EventUpdate)

	// Let any spurious second window expire before counting.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, w.rebuildCount())

	updates := 0
	for _, ev := range sink.snapshot() {
		if ev.Type == EventUpdate {
			updates++
		}
	}
	assert.Equal(t, 1, updates)

	cancel()
	<-done
}

func TestChannelSecondBurstOpensNewWindow(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{rebuildEvent: Update(sessionSnap("s-1")), code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{Debounce: 20 * time.Millisecond, Heartbeat: time.Hour})
	defer cancel()

	sink.waitFor(t, EventInitial)

	notify := func() {
		bus.Publish(changefeed.Notification{
			Resource: changefeed.ResourceSessions, Event: changefeed.EventUpdate,
			Key: "s-1", SessionID: "s-1",
		})
	}

	notify()
	sink.waitFor(t, EventUpdate)
	notify()
	sink.waitFor(t, EventUpdate)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, w.rebuildCount())

	cancel()
	<-done
}

func TestChannelClientAbortReleasesSubscriptions(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	feed := &countingFeed{bus: bus}
	sink := newRecordingSink()
	w := &stubWatcher{rebuildEvent: Update(sessionSnap("s-1")), code: CodeChannelClosed}

	cancel, done := runChannel(sink, feed, w, Options{Debounce: 10 * time.Millisecond, Heartbeat: time.Hour})

	sink.waitFor(t, EventInitial)
	require.Len(t, feed.handedOut(), 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not stop after context cancel")
	}

	// Teardown must have closed every subscription it took out.
	for _, sub := range feed.handedOut() {
		select {
		case _, open := <-sub.C():
			assert.False(t, open, "subscription left open after teardown")
		default:
			t.Fatal("subscription channel neither closed nor drained")
		}
	}

	// Frozen after teardown: further publishes reach nobody.
	before := len(sink.snapshot())
	bus.Publish(changefeed.Notification{
		Resource: changefeed.ResourceSessions, Event: changefeed.EventUpdate,
		Key: "s-1", SessionID: "s-1",
	})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, len(sink.snapshot()))
	assert.Equal(t, 0, w.rebuildCount())
}

func TestChannelUpstreamShutdownEmitsClosedCode(t *testing.T) {
	bus := changefeed.NewBus()
	sink := newRecordingSink()
	w := &stubWatcher{rebuildEvent: Update(sessionSnap("s-1")), code: CodeSessionsChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{Debounce: 10 * time.Millisecond, Heartbeat: time.Hour})
	defer cancel()

	sink.waitFor(t, EventInitial)
	bus.Shutdown()

	ev := sink.waitFor(t, EventError)
	assert.Equal(t, CodeSessionsChannelClosed, ev.Message)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not stop after upstream shutdown")
	}
}

func TestChannelInitialFetchFailure(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{initialErr: errors.New("db gone"), code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{})
	defer cancel()

	ev := sink.waitFor(t, EventError)
	assert.Equal(t, CodeInitialFetchFailed, ev.Message)
	<-done

	events := sink.snapshot()
	require.Len(t, events, 1)
}

func TestChannelRefetchFailure(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{rebuildErr: errors.New("db gone"), code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{Debounce: 10 * time.Millisecond, Heartbeat: time.Hour})
	defer cancel()

	sink.waitFor(t, EventInitial)
	bus.Publish(changefeed.Notification{
		Resource: changefeed.ResourceSessions, Event: changefeed.EventUpdate,
		Key: "s-1", SessionID: "s-1",
	})

	ev := sink.waitFor(t, EventError)
	assert.Equal(t, CodeRefetchFailed, ev.Message)
	<-done
}

func TestChannelClosesAfterDoneInitial(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{initialDone: true, code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{})
	defer cancel()

	sink.waitFor(t, EventInitial)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after watcher reported done")
	}
}

func TestChannelHeartbeat(t *testing.T) {
	bus := changefeed.NewBus()
	defer bus.Shutdown()
	sink := newRecordingSink()
	w := &stubWatcher{rebuildEvent: Update(sessionSnap("s-1")), code: CodeChannelClosed}

	cancel, done := runChannel(sink, bus, w, Options{Debounce: 10 * time.Millisecond, Heartbeat: 20 * time.Millisecond})
	defer cancel()

	sink.waitFor(t, EventInitial)
	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.comments) >= 2
	}, 2*time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	assert.Equal(t, "keep-alive", sink.comments[0])
	sink.mu.Unlock()

	cancel()
	<-done
}
