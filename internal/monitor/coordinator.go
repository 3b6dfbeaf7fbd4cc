// Package monitor is the observation engine: it browses queues on a poll
// loop, subscribes to topics, and keeps both in one cache that is
// broadcast to a Sink whenever it gains new messages.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/cache"
	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/metrics"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

const (
	DefaultTick        = 500 * time.Millisecond
	DefaultMinInterval = time.Second
	DefaultGrace       = 100 * time.Millisecond
)

// Options tune the coordinator. Zero values take the defaults.
//
// Stop returns within Tick + Grace plus one consumer cancel wait
// (rabbitmq.CancelTimeout) in the worst case: the poll loop checks the
// running flag once per tick, a browse in flight is cancelled through the
// session context, and topic consumers are closed concurrently.
type Options struct {
	// Tick is how often the poll loop wakes up.
	Tick time.Duration
	// MinInterval is the minimum time between two polls of one queue.
	MinInterval time.Duration
	// Grace bounds how long Stop waits for the poll loop to exit.
	Grace       time.Duration
	MaxMessages int
	Decoder     PayloadDecoder
	Metrics     *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Tick <= 0 {
		o.Tick = DefaultTick
	}
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultMinInterval
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.MaxMessages <= 0 {
		o.MaxMessages = DefaultMaxMessages
	}
	return o
}

// Coordinator owns the monitoring lifecycle. Commands are serialised; the
// poll loop and topic deliveries run concurrently with them and share state
// only through the cache lock.
type Coordinator struct {
	broker    rabbitmq.Broker
	cache     *cache.Cache
	browser   *Browser
	subs      *Subscriptions
	discovery *Discovery
	notify    notifier
	metrics   *metrics.Metrics
	opts      Options

	mu      sync.Mutex
	current *Session // guarded by the cache lock
}

func New(broker rabbitmq.Broker, lister Lister, sink Sink, log zerolog.Logger, opts Options) *Coordinator {
	if sink == nil {
		sink = NopSink{}
	}
	opts = opts.withDefaults()
	c := cache.New()
	return &Coordinator{
		broker:    broker,
		cache:     c,
		browser:   NewBrowser(broker, log, opts.MaxMessages, opts.Decoder, opts.Metrics),
		subs:      NewSubscriptions(broker, c, sink, log, opts.Metrics),
		discovery: NewDiscovery(broker, lister, sink, log, opts.Metrics),
		notify:    notifier{log: log.With().Str("component", "monitor").Logger(), sink: sink},
		metrics:   opts.Metrics,
		opts:      opts,
	}
}

// StartAll replaces whatever is being monitored with exactly queues and
// topics. Topic subscriptions are in place before the poll loop starts. A
// topic that cannot be subscribed is reported and left out.
func (c *Coordinator) StartAll(ctx context.Context, queues, topics []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(ctx, uniqueNames(queues), uniqueNames(topics))
}

// StartOne adds one destination to the current monitoring set and restarts
// monitoring with the result. Unlike StartAll it never drops destinations
// already being monitored.
func (c *Coordinator) StartOne(ctx context.Context, name string, kind message.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var queues, topics []string
	if s := c.session(); s != nil {
		queues, topics = s.Queues(), s.Topics()
	}
	switch kind {
	case message.Queue:
		queues = append(queues, name)
	case message.Topic:
		topics = append(topics, name)
	default:
		return fmt.Errorf("cannot monitor %s: unknown destination kind", name)
	}
	return c.start(ctx, uniqueNames(queues), uniqueNames(topics))
}

func (c *Coordinator) start(ctx context.Context, queues, topics []string) error {
	c.stop()
	c.cache.Clear()

	if len(queues) == 0 && len(topics) == 0 {
		c.notify.info("no destinations to monitor")
		return nil
	}
	if !c.broker.Connected() {
		c.notify.error(rabbitmq.ErrNotConnected, "cannot start monitoring")
		return rabbitmq.ErrNotConnected
	}

	subscribed := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, err := c.subs.Subscribe(ctx, t); err != nil {
			c.notify.error(err, "topic %s left unmonitored", t)
			continue
		}
		subscribed = append(subscribed, t)
	}
	if len(queues) == 0 && len(subscribed) == 0 {
		c.notify.info("no destinations to monitor")
		return nil
	}

	s := newSession(ctx, queues, subscribed)
	s.running.Store(true)
	c.cache.Update(func(*cache.Tx) { c.current = s })
	c.metrics.SetRunning(true)

	go c.pollLoop(s)

	c.notify.info("monitoring %d queues and %d topics", len(queues), len(subscribed))
	return nil
}

// Stop ends the current session, closes every subscription and clears the
// cache. It is a no-op when nothing is running.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop()
}

func (c *Coordinator) stop() {
	s := c.session()
	if s == nil {
		return
	}

	s.running.Store(false)
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(c.opts.Grace):
		c.notify.log.Debug().Msg("poll loop still busy after grace period, leaving it to exit")
	}

	c.subs.UnsubscribeAll()

	c.cache.Update(func(tx *cache.Tx) {
		if c.current == s {
			c.current = nil
		}
		tx.Clear()
	})
	c.metrics.SetRunning(false)
	c.metrics.ObserveSnapshot(0)
	c.notify.sink.MessagesUpdated(nil)
	c.notify.info("monitoring stopped")
}

func (c *Coordinator) session() *Session {
	var s *Session
	c.cache.Update(func(*cache.Tx) { s = c.current })
	return s
}

// Running reports whether a monitoring session is active.
func (c *Coordinator) Running() bool {
	s := c.session()
	return s != nil && s.Running()
}

// Monitored returns the destinations of the current session.
func (c *Coordinator) Monitored() (queues, topics []string) {
	s := c.session()
	if s == nil {
		return nil, nil
	}
	return s.Queues(), s.Topics()
}

// Snapshot returns every cached message.
func (c *Coordinator) Snapshot() []message.Message {
	return c.cache.SnapshotAll()
}

// Browse reads queue on demand and emits the result. The cache is not
// touched.
func (c *Coordinator) Browse(ctx context.Context, queue string) BrowseResult {
	if !c.broker.Connected() {
		c.notify.error(rabbitmq.ErrNotConnected, "cannot browse %s", queue)
		return BrowseResult{Queue: queue, Err: rabbitmq.ErrNotConnected}
	}
	res := c.browseQueue(ctx, queue)
	c.notify.sink.MessagesUpdated(res.Messages())
	return res
}

// Discover lists destinations on the broker.
func (c *Coordinator) Discover(ctx context.Context) (queues, topics []string) {
	return c.discovery.Discover(ctx)
}

// Publish sends a text message to a queue or topic on the shared session.
func (c *Coordinator) Publish(ctx context.Context, dest message.Destination, body string, props map[string]string) error {
	sess, err := c.broker.Session()
	if err != nil {
		c.notify.error(err, "cannot send to %s", dest)
		return err
	}
	if err := sess.Publish(ctx, dest, body, props); err != nil {
		c.notify.error(err, "send to %s failed", dest)
		return err
	}
	c.notify.info("sent message to %s", dest)
	return nil
}

// browseQueue does a fresh browse and reports what went wrong, if anything.
func (c *Coordinator) browseQueue(ctx context.Context, queue string) BrowseResult {
	res := c.browser.Browse(ctx, queue, true)
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		c.notify.warn(res.Err, "browse of queue %s stopped after %d messages", queue, len(res.Items))
	}
	if res.AllFailed() {
		c.notify.error(nil, "none of the %d messages on queue %s could be read", len(res.Items), queue)
	}
	return res
}

func (c *Coordinator) pollLoop(s *Session) {
	defer close(s.done)

	c.poll(s, true)

	ticker := time.NewTicker(c.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.running.Load() {
			return
		}
		c.poll(s, false)
	}
}

// poll browses the queues that are due. The first pass covers every queue
// and always publishes. Later passes publish only when some queue shows an
// id it did not have on its previous poll; then every polled queue's entry
// is replaced by its latest browse. lastSeen is updated either way.
func (c *Coordinator) poll(s *Session, initial bool) {
	if len(s.queues) == 0 {
		return
	}

	now := time.Now()
	polled := make([]string, 0, len(s.queues))
	results := make(map[string][]message.Message, len(s.queues))
	seen := make(map[string]map[string]struct{}, len(s.queues))
	changed := initial

	for _, q := range s.queues {
		if !s.running.Load() {
			return
		}
		if !initial && !s.due(q, now, c.opts.MinInterval) {
			continue
		}
		polled = append(polled, q)

		res := c.browseQueue(s.ctx, q)
		if res.Err != nil && len(res.Items) == 0 {
			// Nothing read: keep the previous entry.
			continue
		}
		msgs := res.Messages()
		ids := message.IDs(msgs)
		if !initial && s.hasNew(q, ids) {
			changed = true
		}
		results[q] = msgs
		seen[q] = ids
	}

	var snap []message.Message
	published := false
	c.cache.Update(func(tx *cache.Tx) {
		if c.current != s || !s.running.Load() {
			return
		}
		for _, q := range polled {
			s.lastPoll[q] = now
		}
		for q, ids := range seen {
			s.lastSeen[q] = ids
		}
		if !changed {
			return
		}
		for q, msgs := range results {
			tx.Replace(message.Key(message.Queue, q), msgs)
		}
		snap = tx.SnapshotAll()
		published = true
	})
	if !published {
		return
	}

	c.metrics.ObserveSnapshot(len(snap))
	c.notify.log.Debug().Int("messages", len(snap)).Bool("initial", initial).Msg("queue contents changed")
	c.notify.sink.MessagesUpdated(snap)
}
