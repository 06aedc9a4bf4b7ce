package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"factory-floor-backend/internal/changefeed"
)

// Options tunes one channel's timing.
type Options struct {
	// Debounce is the window used to coalesce bursts of change
	// notifications into a single rebuild-and-emit.
	Debounce time.Duration
	// Heartbeat is the interval between keep-alive comment frames.
	Heartbeat time.Duration
}

const (
	defaultDebounce  = 250 * time.Millisecond
	defaultHeartbeat = 25 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = defaultDebounce
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = defaultHeartbeat
	}
	return o
}

// watcher is the per-resource half of a channel: which feeds to follow and
// how to turn change notifications into stream events. rebuild and initial
// return done=true when the channel should close gracefully afterwards.
type watcher interface {
	resources() []string
	relevant(n changefeed.Notification) bool
	closedCode() string
	initial(ctx context.Context) ([]Event, bool, error)
	rebuild(ctx context.Context, dirty map[string]struct{}) ([]Event, bool, error)
}

// Channel is one long-lived push stream for one client and one watched
// resource. It owns its upstream subscriptions and timers; failure or
// teardown of one channel never affects siblings.
type Channel struct {
	id   string
	sink Sink
	feed changefeed.Feed
	w    watcher
	opts Options

	mu      sync.Mutex
	closing bool
	subs    []*changefeed.Subscription

	notifications chan changefeed.Notification
	upstreamGone  chan struct{}
}

func newChannel(sink Sink, feed changefeed.Feed, w watcher, opts Options) *Channel {
	return &Channel{
		id:            uuid.NewString(),
		sink:          sink,
		feed:          feed,
		w:             w,
		opts:          opts.withDefaults(),
		notifications: make(chan changefeed.Notification, 64),
		upstreamGone:  make(chan struct{}, 1),
	}
}

// Run drives the channel until the context is cancelled (client abort), the
// upstream feed drops, or the watcher reports it is done. It always tears
// the channel down before returning.
func (c *Channel) Run(ctx context.Context) {
	defer c.teardown()

	// Subscribe before taking the initial snapshot so a change landing in
	// between is not lost; it simply triggers an early rebuild.
	for _, resource := range c.w.resources() {
		sub := c.feed.Subscribe(resource)
		c.mu.Lock()
		c.subs = append(c.subs, sub)
		c.mu.Unlock()
		go c.forward(ctx, sub)
	}

	events, done, err := c.w.initial(ctx)
	if err != nil {
		log.Printf("stream: channel %s initial snapshot failed: %v", c.id, err)
		c.emit(Error(CodeInitialFetchFailed))
		return
	}
	for _, ev := range events {
		if !c.emit(ev) {
			return
		}
	}
	if done {
		return
	}

	heartbeat := time.NewTicker(c.opts.Heartbeat)
	defer heartbeat.Stop()

	// The debounce timer exists only while a window is open. Notifications
	// landing inside the window mark entities dirty; the rebuild on expiry
	// uses the latest stored state, so coalescing loses nothing.
	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	dirty := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.upstreamGone:
			c.emit(Error(c.w.closedCode()))
			return

		case n := <-c.notifications:
			if n.SessionID != "" {
				dirty[n.SessionID] = struct{}{}
			}
			if debounce == nil {
				debounce = time.NewTimer(c.opts.Debounce)
				debounceC = debounce.C
			}

		case <-debounceC:
			debounce = nil
			debounceC = nil
			if c.isClosing() {
				return
			}
			events, done, err := c.w.rebuild(ctx, dirty)
			dirty = make(map[string]struct{})
			if err != nil {
				log.Printf("stream: channel %s rebuild failed: %v", c.id, err)
				c.emit(Error(CodeRefetchFailed))
				return
			}
			for _, ev := range events {
				if !c.emit(ev) {
					return
				}
			}
			if done {
				return
			}

		case <-heartbeat.C:
			if !c.comment("keep-alive") {
				return
			}
		}
	}
}

// forward pumps one subscription into the channel's merged notification
// stream, filtering what the watcher does not care about. When the
// subscription channel closes underneath us the upstream feed is gone.
func (c *Channel) forward(ctx context.Context, sub *changefeed.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				if !c.isClosing() {
					select {
					case c.upstreamGone <- struct{}{}:
					default:
					}
				}
				return
			}
			if !c.w.relevant(n) {
				continue
			}
			select {
			case c.notifications <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

// teardown releases all upstream subscriptions. It is idempotent: the
// closing flag ensures timers and late emits become no-ops and resources are
// released exactly once.
func (c *Channel) teardown() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (c *Channel) isClosing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

// emit writes one frame unless the channel is already closing. A transport
// write error means the client is gone; the caller stops the loop.
func (c *Channel) emit(ev Event) bool {
	if c.isClosing() {
		return false
	}
	if err := c.sink.Send(ev); err != nil {
		log.Printf("stream: channel %s write failed, closing: %v", c.id, err)
		return false
	}
	return true
}

func (c *Channel) comment(text string) bool {
	if c.isClosing() {
		return false
	}
	if err := c.sink.Comment(text); err != nil {
		return false
	}
	return true
}
