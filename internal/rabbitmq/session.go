package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/randutil"
)

// channelSession implements Session over one AMQP channel. The shared
// session passes reopen so a channel closed by a broker exception (404 on
// a deleted queue, for example) is replaced on next use.
type channelSession struct {
	mu     sync.Mutex
	ch     *amqp.Channel
	reopen func() (*amqp.Channel, error)
	closed bool

	// browseMu serialises cursors: nack-on-close would otherwise return
	// another cursor's deliveries too.
	browseMu sync.Mutex
}

func newChannelSession(ch *amqp.Channel, reopen func() (*amqp.Channel, error)) *channelSession {
	return &channelSession{ch: ch, reopen: reopen}
}

func (s *channelSession) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, amqp.ErrClosed
	}
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	if s.reopen == nil {
		return nil, amqp.ErrClosed
	}
	ch, err := s.reopen()
	if err != nil {
		return nil, fmt.Errorf("failed to reopen channel: %w", err)
	}
	s.ch = ch
	return ch, nil
}

func (s *channelSession) Browse(ctx context.Context, queue string) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.browseMu.Lock()

	ch, err := s.channel()
	if err != nil {
		s.browseMu.Unlock()
		return nil, err
	}

	// Passive declare fails (and closes the channel) if the queue is gone,
	// and tells us how many messages are ready right now.
	q, err := ch.QueueDeclarePassive(queue, false, false, false, false, nil)
	if err != nil {
		s.browseMu.Unlock()
		return nil, fmt.Errorf("failed to inspect queue %s: %w", queue, err)
	}

	return &getCursor{
		ch:        ch,
		queue:     queue,
		remaining: q.Messages,
		release:   s.browseMu.Unlock,
	}, nil
}

// getCursor reads with basic.get and no ack. Nothing is consumed: on close
// every delivery taken is nacked with requeue.
type getCursor struct {
	ch        *amqp.Channel
	queue     string
	remaining int
	lastTag   uint64
	release   func()
	once      sync.Once
}

func (c *getCursor) Next(ctx context.Context) (Delivery, bool, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, false, err
	}
	// Stop at the depth seen when the cursor opened so the scan is a
	// snapshot rather than chasing new publishes.
	if c.remaining <= 0 {
		return Delivery{}, false, nil
	}
	msg, ok, err := c.ch.Get(c.queue, false)
	if err != nil {
		return Delivery{}, false, fmt.Errorf("failed to read from %s: %w", c.queue, err)
	}
	if !ok {
		return Delivery{}, false, nil
	}
	c.remaining--
	c.lastTag = msg.DeliveryTag
	return fromAMQP(msg), true, nil
}

func (c *getCursor) Close() error {
	var err error
	c.once.Do(func() {
		defer c.release()
		if c.lastTag > 0 && !c.ch.IsClosed() {
			err = c.ch.Nack(c.lastTag, true, true)
		}
	})
	return err
}

func (s *channelSession) Subscribe(ctx context.Context, exchange, bindingKey string, handler func(Delivery)) (Consumer, error) {
	deliveries, ch, tag, err := s.bindPrivateQueue(ctx, exchange, bindingKey)
	if err != nil {
		return nil, err
	}

	c := &pushConsumer{ch: ch, tag: tag, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for d := range deliveries {
			handler(fromAMQP(d))
		}
	}()
	return c, nil
}

func (s *channelSession) Listen(ctx context.Context, exchange, bindingKey string) (Receiver, error) {
	deliveries, ch, tag, err := s.bindPrivateQueue(ctx, exchange, bindingKey)
	if err != nil {
		return nil, err
	}
	return &pullReceiver{ch: ch, tag: tag, deliveries: deliveries}, nil
}

// bindPrivateQueue declares an exclusive auto-delete server-named queue,
// binds it to exchange and starts an auto-ack consumer on it.
func (s *channelSession) bindPrivateQueue(ctx context.Context, exchange, bindingKey string) (<-chan amqp.Delivery, *amqp.Channel, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, "", err
	}
	ch, err := s.channel()
	if err != nil {
		return nil, nil, "", err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return nil, nil, "", fmt.Errorf("failed to bind queue to %s: %w", exchange, err)
	}

	tag := fmt.Sprintf("%s-%s", connectionName, randutil.RandomSuffix())
	deliveries, err := ch.Consume(
		q.Name,
		tag,
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, ch, tag, nil
}

func (s *channelSession) Publish(ctx context.Context, dest message.Destination, body string, props map[string]string) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}

	exchange, key := "", dest.Name
	if dest.Kind == message.Topic {
		exchange, key = dest.Name, ""
	}

	headers := make(amqp.Table, len(props))
	for k, v := range props {
		headers[k] = v
	}

	err = ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		Headers:     headers,
		ContentType: "text/plain",
		Type:        "text",
		MessageId:   fmt.Sprintf("ID:%s-%s", connectionName, randutil.RandomSuffix()),
		Timestamp:   time.Now(),
		Body:        []byte(body),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", dest, err)
	}
	return nil
}

func (s *channelSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ch == nil || s.ch.IsClosed() {
		return nil
	}
	return s.ch.Close()
}

// CancelTimeout bounds how long closing a topic consumer waits for its
// delivery goroutine.
const CancelTimeout = time.Second

type pushConsumer struct {
	ch   *amqp.Channel
	tag  string
	done chan struct{}
	once sync.Once
}

// Close cancels the consumer and waits briefly for the delivery goroutine
// to drain.
func (c *pushConsumer) Close() error {
	var err error
	c.once.Do(func() {
		if c.ch.IsClosed() {
			return
		}
		if cerr := c.ch.Cancel(c.tag, false); cerr != nil {
			err = fmt.Errorf("failed to cancel consumer %s: %w", c.tag, cerr)
			return
		}
		select {
		case <-c.done:
		case <-time.After(CancelTimeout):
		}
	})
	return err
}

type pullReceiver struct {
	ch         *amqp.Channel
	tag        string
	deliveries <-chan amqp.Delivery
}

func (r *pullReceiver) Receive(ctx context.Context, timeout time.Duration) (Delivery, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Delivery{}, false, ctx.Err()
	case <-timer.C:
		return Delivery{}, false, nil
	case d, ok := <-r.deliveries:
		if !ok {
			return Delivery{}, false, errors.New("receiver closed")
		}
		return fromAMQP(d), true, nil
	}
}

func (r *pullReceiver) Close() error {
	if r.ch.IsClosed() {
		return nil
	}
	return r.ch.Cancel(r.tag, false)
}
