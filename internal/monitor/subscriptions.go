package monitor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/cache"
	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/metrics"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// TopicBindingKey binds the private queue to every routing key.
const TopicBindingKey = "#"

// Subscription is one push listener on a topic. It owns its session.
type Subscription struct {
	Topic    string
	session  rabbitmq.Session
	consumer rabbitmq.Consumer
	active   atomic.Bool
}

// Active reports whether deliveries are still being recorded.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Subscriptions keeps at most one subscription per topic. Deliveries are
// appended to the cache and followed by a full snapshot broadcast.
type Subscriptions struct {
	broker  rabbitmq.Broker
	cache   *cache.Cache
	sink    Sink
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewSubscriptions(broker rabbitmq.Broker, c *cache.Cache, sink Sink, log zerolog.Logger, m *metrics.Metrics) *Subscriptions {
	return &Subscriptions{
		broker:  broker,
		cache:   c,
		sink:    sink,
		log:     log.With().Str("component", "subscriptions").Logger(),
		metrics: m,
		subs:    make(map[string]*Subscription),
	}
}

// Subscribe starts listening on topic. Subscribing to a topic that already
// has a subscription returns the existing one.
func (m *Subscriptions) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[topic]; ok {
		return sub, nil
	}
	if !m.broker.Connected() {
		return nil, &SubscriptionError{Topic: topic, Err: rabbitmq.ErrNotConnected}
	}

	sess, err := m.broker.NewSession()
	if err != nil {
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}

	sub := &Subscription{Topic: topic, session: sess}
	sub.active.Store(true)

	consumer, err := sess.Subscribe(ctx, topic, TopicBindingKey, func(d rabbitmq.Delivery) {
		m.deliver(sub, d)
	})
	if err != nil {
		sub.active.Store(false)
		if cerr := sess.Close(); cerr != nil {
			m.log.Debug().Err(cerr).Str("topic", topic).Msg("closing session after failed subscribe")
		}
		return nil, &SubscriptionError{Topic: topic, Err: err}
	}
	sub.consumer = consumer

	m.subs[topic] = sub
	m.metrics.SetSubscriptions(len(m.subs))
	m.log.Info().Str("topic", topic).Msg("subscribed")
	return sub, nil
}

// deliver runs on the consumer's goroutine. It touches shared state only
// through cache.Update.
func (m *Subscriptions) deliver(sub *Subscription, d rabbitmq.Delivery) {
	if !sub.active.Load() {
		return
	}
	msg, err := topicMessage(d, sub.Topic)
	if err != nil {
		m.log.Warn().Err(err).Msg("skipping unreadable message")
		m.metrics.AddItemFailures(message.Key(message.Topic, sub.Topic), 1)
		return
	}

	var snap []message.Message
	recorded := false
	m.cache.Update(func(tx *cache.Tx) {
		if !sub.active.Load() {
			return
		}
		tx.Append(message.Key(message.Topic, sub.Topic), msg)
		snap = tx.SnapshotAll()
		recorded = true
	})
	if !recorded {
		return
	}

	m.metrics.IncTopicMessage(sub.Topic)
	m.metrics.ObserveSnapshot(len(snap))
	m.sink.MessagesUpdated(snap)
}

// UnsubscribeAll closes every subscription concurrently. A failure to
// close one is logged and the rest are still closed. The table is empty afterwards.
func (m *Subscriptions) UnsubscribeAll() {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]*Subscription)
	m.mu.Unlock()

	// Consumers close in parallel so Stop pays one cancel wait, not one per topic.
	var wg sync.WaitGroup
	for topic, sub := range subs {
		sub.active.Store(false)
		wg.Go(func() {
			if err := sub.consumer.Close(); err != nil {
				m.log.Warn().Err(err).Str("topic", topic).Msg("failed to close consumer")
			}
			if err := sub.session.Close(); err != nil {
				m.log.Warn().Err(err).Str("topic", topic).Msg("failed to close subscription session")
			}
		})
	}
	wg.Wait()
	m.metrics.SetSubscriptions(0)
	if len(subs) > 0 {
		m.log.Info().Int("count", len(subs)).Msg("unsubscribed from topics")
	}
}

// Active returns the subscribed topic names, sorted.
func (m *Subscriptions) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.subs))
	for t := range m.subs {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
