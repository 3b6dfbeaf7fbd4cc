package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// fakeBroker is an in-memory rabbitmq.Broker. Queue contents are returned
// by every browse until changed with setQueue.
type fakeBroker struct {
	mu sync.Mutex

	connected     bool
	newSessionErr error

	queues       map[string][]rabbitmq.Delivery
	browseErr    map[string]error
	cursorFailAt map[string]int

	subscribeErr   map[string]error
	subscribeCalls map[string]int
	consumers      map[string][]*fakeConsumer
	closeErr       map[string]error
	closeDelay     time.Duration

	advisories map[string][]rabbitmq.Delivery
	published  []published

	opened int
	closed int

	cursorsOpened int
	cursorsClosed int
}

type published struct {
	dest  message.Destination
	body  string
	props map[string]string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		connected:      true,
		queues:         make(map[string][]rabbitmq.Delivery),
		browseErr:      make(map[string]error),
		cursorFailAt:   make(map[string]int),
		subscribeErr:   make(map[string]error),
		subscribeCalls: make(map[string]int),
		consumers:      make(map[string][]*fakeConsumer),
		closeErr:       make(map[string]error),
		advisories:     make(map[string][]rabbitmq.Delivery),
	}
}

func (b *fakeBroker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Session() (rabbitmq.Session, error) {
	if !b.Connected() {
		return nil, rabbitmq.ErrNotConnected
	}
	return &fakeSession{b: b, shared: true}, nil
}

func (b *fakeBroker) NewSession() (rabbitmq.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, rabbitmq.ErrNotConnected
	}
	if b.newSessionErr != nil {
		return nil, b.newSessionErr
	}
	b.opened++
	return &fakeSession{b: b}, nil
}

func (b *fakeBroker) setQueue(name string, ds ...rabbitmq.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[name] = ds
}

func (b *fakeBroker) sessions() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened, b.closed
}

func (b *fakeBroker) cursors() (opened, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursorsOpened, b.cursorsClosed
}

func (b *fakeBroker) subscribeCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribeCalls[topic]
}

// deliver hands d to every open consumer on topic, the way the broker's
// delivery goroutine would.
func (b *fakeBroker) deliver(topic string, d rabbitmq.Delivery) {
	b.mu.Lock()
	var handlers []func(rabbitmq.Delivery)
	for _, c := range b.consumers[topic] {
		if !c.isClosed() {
			handlers = append(handlers, c.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(d)
	}
}

type fakeSession struct {
	b      *fakeBroker
	shared bool
	once   sync.Once
}

func (s *fakeSession) Browse(ctx context.Context, queue string) (rabbitmq.Cursor, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if err := s.b.browseErr[queue]; err != nil {
		return nil, err
	}
	items := append([]rabbitmq.Delivery(nil), s.b.queues[queue]...)
	failAt, ok := s.b.cursorFailAt[queue]
	if !ok {
		failAt = -1
	}
	s.b.cursorsOpened++
	return &fakeCursor{b: s.b, items: items, failAt: failAt}, nil
}

func (s *fakeSession) Subscribe(ctx context.Context, exchange, bindingKey string, handler func(rabbitmq.Delivery)) (rabbitmq.Consumer, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.subscribeCalls[exchange]++
	if err := s.b.subscribeErr[exchange]; err != nil {
		return nil, err
	}
	c := &fakeConsumer{handler: handler, closeErr: s.b.closeErr[exchange], closeDelay: s.b.closeDelay}
	s.b.consumers[exchange] = append(s.b.consumers[exchange], c)
	return c, nil
}

func (s *fakeSession) Listen(ctx context.Context, exchange, bindingKey string) (rabbitmq.Receiver, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if exchange != AdvisoryExchange {
		return nil, errors.New("no such exchange")
	}
	return &fakeReceiver{items: append([]rabbitmq.Delivery(nil), s.b.advisories[bindingKey]...)}, nil
}

func (s *fakeSession) Publish(ctx context.Context, dest message.Destination, body string, props map[string]string) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.published = append(s.b.published, published{dest: dest, body: body, props: props})
	return nil
}

func (s *fakeSession) Close() error {
	if s.shared {
		return nil
	}
	s.once.Do(func() {
		s.b.mu.Lock()
		s.b.closed++
		s.b.mu.Unlock()
	})
	return nil
}

type fakeCursor struct {
	b      *fakeBroker
	items  []rabbitmq.Delivery
	pos    int
	failAt int
}

func (c *fakeCursor) Next(ctx context.Context) (rabbitmq.Delivery, bool, error) {
	if err := ctx.Err(); err != nil {
		return rabbitmq.Delivery{}, false, err
	}
	if c.pos == c.failAt {
		return rabbitmq.Delivery{}, false, errors.New("channel closed")
	}
	if c.pos >= len(c.items) {
		return rabbitmq.Delivery{}, false, nil
	}
	d := c.items[c.pos]
	c.pos++
	return d, true, nil
}

func (c *fakeCursor) Close() error {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.cursorsClosed++
	return nil
}

type fakeConsumer struct {
	mu       sync.Mutex
	handler  func(rabbitmq.Delivery)
	closeErr error
	closed   bool

	closeDelay time.Duration
}

func (c *fakeConsumer) Close() error {
	time.Sleep(c.closeDelay)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeConsumer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeReceiver struct {
	items []rabbitmq.Delivery
	reads int
}

func (r *fakeReceiver) Receive(ctx context.Context, timeout time.Duration) (rabbitmq.Delivery, bool, error) {
	r.reads++
	if len(r.items) == 0 {
		return rabbitmq.Delivery{}, false, nil
	}
	d := r.items[0]
	r.items = r.items[1:]
	return d, true, nil
}

func (r *fakeReceiver) Close() error { return nil }

// fakeLister returns one canned answer per call, repeating the last.
type fakeLister struct {
	mu     sync.Mutex
	queues [][]string
	topics [][]string
	qCalls int
	tCalls int
	err    error
}

func (l *fakeLister) ListQueues(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qCalls++
	if l.err != nil {
		return nil, l.err
	}
	return pick(l.queues, l.qCalls), nil
}

func (l *fakeLister) ListTopics(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tCalls++
	if l.err != nil {
		return nil, l.err
	}
	return pick(l.topics, l.tCalls), nil
}

func (l *fakeLister) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.qCalls
}

func pick(answers [][]string, call int) []string {
	if len(answers) == 0 {
		return nil
	}
	if call > len(answers) {
		call = len(answers)
	}
	return answers[call-1]
}

// recordingSink keeps every event for assertions.
type recordingSink struct {
	mu        sync.Mutex
	dests     [][2][]string
	snapshots [][]message.Message
	logs      []string
	errs      []string
}

func (s *recordingSink) DestinationsUpdated(queues, topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dests = append(s.dests, [2][]string{queues, topics})
}

func (s *recordingSink) MessagesUpdated(msgs []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, msgs)
}

func (s *recordingSink) Log(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, line)
}

func (s *recordingSink) Error(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, line)
}

func (s *recordingSink) snapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

func (s *recordingSink) lastSnapshot() []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return nil
	}
	return s.snapshots[len(s.snapshots)-1]
}

func (s *recordingSink) logLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.logs...)
}

func (s *recordingSink) errorLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errs...)
}

func textDelivery(id, body string) rabbitmq.Delivery {
	return rabbitmq.Delivery{MessageID: id, Type: "text", ContentType: "text/plain", Body: []byte(body)}
}

func sortedIDs(msgs []message.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids
}
