package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/epalmerini/rabbitwatch/internal/metrics"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// Advisory event source used when the management listing is empty. The
// rabbitmq_event_exchange plugin publishes one message per created
// destination with its name in the "name" header.
const (
	AdvisoryExchange       = "amq.rabbitmq.event"
	advisoryQueueCreated   = "queue.created"
	advisoryTopicCreated   = "exchange.created"
	advisoryNameHeader     = "name"
	defaultAdvisoryReads   = 3
	defaultAdvisoryTimeout = 100 * time.Millisecond
)

// Lister is the administrative destination listing.
type Lister interface {
	ListQueues(ctx context.Context) ([]string, error)
	ListTopics(ctx context.Context) ([]string, error)
}

// Discovery enumerates destinations and remembers the last non-empty
// answer.
type Discovery struct {
	broker  rabbitmq.Broker
	lister  Lister
	notify  notifier
	metrics *metrics.Metrics

	AdvisoryReads   int
	AdvisoryTimeout time.Duration

	mu         sync.Mutex
	lastQueues []string
	lastTopics []string
	hasLast    bool
}

func NewDiscovery(broker rabbitmq.Broker, lister Lister, sink Sink, log zerolog.Logger, m *metrics.Metrics) *Discovery {
	return &Discovery{
		broker:          broker,
		lister:          lister,
		notify:          notifier{log: log.With().Str("component", "discovery").Logger(), sink: sink},
		metrics:         m,
		AdvisoryReads:   defaultAdvisoryReads,
		AdvisoryTimeout: defaultAdvisoryTimeout,
	}
}

// Discover returns the queue and topic names on the broker. When nothing
// is found it serves the previous non-empty result, if any. The result is
// also emitted to the sink.
func (d *Discovery) Discover(ctx context.Context) (queues, topics []string) {
	if !d.broker.Connected() {
		d.notify.error(rabbitmq.ErrNotConnected, "cannot discover destinations")
		return nil, nil
	}

	source := "management"
	queues, topics = d.fromListing(ctx)
	if len(queues) == 0 && len(topics) == 0 {
		source = "advisory"
		queues, topics = d.fromAdvisories(ctx)
	}

	d.mu.Lock()
	switch {
	case len(queues) > 0 || len(topics) > 0:
		d.lastQueues, d.lastTopics, d.hasLast = slices.Clone(queues), slices.Clone(topics), true
	case d.hasLast:
		source = "cached"
		queues, topics = slices.Clone(d.lastQueues), slices.Clone(d.lastTopics)
	default:
		source = "none"
	}
	d.mu.Unlock()

	d.metrics.IncDiscovery(source)
	if source == "cached" {
		d.notify.info("using cached destination list")
	} else {
		d.notify.log.Debug().Str("source", source).Int("queues", len(queues)).Int("topics", len(topics)).Msg("discovered destinations")
	}
	d.notify.sink.DestinationsUpdated(queues, topics)
	return queues, topics
}

// fromListing asks the management API for both lists concurrently. A
// failing list is logged and treated as empty.
func (d *Discovery) fromListing(ctx context.Context) (queues, topics []string) {
	if d.lister == nil {
		return nil, nil
	}
	var g errgroup.Group
	g.Go(func() error {
		q, err := d.lister.ListQueues(ctx)
		if err != nil {
			d.notify.warn(err, "queue listing failed")
			return nil
		}
		queues = q
		return nil
	})
	g.Go(func() error {
		t, err := d.lister.ListTopics(ctx)
		if err != nil {
			d.notify.warn(err, "topic listing failed")
			return nil
		}
		topics = t
		return nil
	})
	_ = g.Wait()

	return normalizeNames(queues, false), normalizeNames(topics, true)
}

// fromAdvisories listens briefly for destination creation events.
func (d *Discovery) fromAdvisories(ctx context.Context) (queues, topics []string) {
	var g errgroup.Group
	g.Go(func() error {
		queues = d.listenAdvisory(ctx, advisoryQueueCreated)
		return nil
	})
	g.Go(func() error {
		topics = d.listenAdvisory(ctx, advisoryTopicCreated)
		return nil
	})
	_ = g.Wait()

	return normalizeNames(queues, false), normalizeNames(topics, true)
}

// listenAdvisory opens a session of its own, reads at most AdvisoryReads
// events and releases everything before returning.
func (d *Discovery) listenAdvisory(ctx context.Context, key string) []string {
	log := d.notify.log.With().Str("event", key).Logger()

	sess, err := d.broker.NewSession()
	if err != nil {
		log.Debug().Err(err).Msg("advisory session unavailable")
		return nil
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("closing advisory session")
		}
	}()

	rcv, err := sess.Listen(ctx, AdvisoryExchange, key)
	if err != nil {
		log.Debug().Err(err).Msg("advisory events unavailable")
		return nil
	}
	defer func() {
		if err := rcv.Close(); err != nil {
			log.Debug().Err(err).Msg("closing advisory receiver")
		}
	}()

	var names []string
	for i := 0; i < d.AdvisoryReads; i++ {
		ev, ok, err := rcv.Receive(ctx, d.AdvisoryTimeout)
		if err != nil {
			log.Debug().Err(err).Msg("advisory receive failed")
			break
		}
		if !ok {
			break
		}
		if name, ok := ev.Headers[advisoryNameHeader].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}

// normalizeNames sorts and de-duplicates names. For topics it also drops
// advisory exchanges.
func normalizeNames(names []string, topics bool) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || (topics && rabbitmq.IsAdvisory(n)) {
			continue
		}
		out = append(out, n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
