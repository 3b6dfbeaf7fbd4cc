package monitor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/metrics"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// DefaultMaxMessages caps how many messages one browse reads.
const DefaultMaxMessages = 1000

// ItemResult is the outcome of reading one message: either Message or Err
// is set.
type ItemResult struct {
	Message message.Message
	Err     error
}

// BrowseResult holds what one queue scan produced. Err is set when the scan
// could not start or was cut short; Items still holds everything read
// before that.
type BrowseResult struct {
	Queue string
	Items []ItemResult
	Err   error
}

// Messages returns the successfully read messages in browse order.
func (r BrowseResult) Messages() []message.Message {
	msgs := make([]message.Message, 0, len(r.Items))
	for _, it := range r.Items {
		if it.Err == nil {
			msgs = append(msgs, it.Message)
		}
	}
	return msgs
}

// Failures returns the per-message errors.
func (r BrowseResult) Failures() []error {
	var errs []error
	for _, it := range r.Items {
		if it.Err != nil {
			errs = append(errs, it.Err)
		}
	}
	return errs
}

// AllFailed reports whether at least one message was seen and none could
// be read.
func (r BrowseResult) AllFailed() bool {
	return len(r.Items) > 0 && len(r.Failures()) == len(r.Items)
}

// Browser reads queue contents without consuming them.
type Browser struct {
	broker      rabbitmq.Broker
	log         zerolog.Logger
	maxMessages int
	decoder     PayloadDecoder
	metrics     *metrics.Metrics
}

func NewBrowser(broker rabbitmq.Broker, log zerolog.Logger, maxMessages int, decoder PayloadDecoder, m *metrics.Metrics) *Browser {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Browser{
		broker:      broker,
		log:         log.With().Str("component", "browser").Logger(),
		maxMessages: maxMessages,
		decoder:     decoder,
		metrics:     m,
	}
}

// Browse scans queue. With fresh set it uses a session of its own, falling
// back to the shared session when one cannot be opened. The cursor and any
// session opened here are released before Browse returns.
func (b *Browser) Browse(ctx context.Context, queue string, fresh bool) BrowseResult {
	res := BrowseResult{Queue: queue}
	if !b.broker.Connected() {
		res.Err = rabbitmq.ErrNotConnected
		return res
	}
	b.metrics.IncBrowse(queue)

	sess, release, err := b.session(fresh)
	if err != nil {
		res.Err = err
		b.metrics.IncBrowseFailure(queue)
		return res
	}
	defer release()

	cur, err := sess.Browse(ctx, queue)
	if err != nil {
		res.Err = err
		b.metrics.IncBrowseFailure(queue)
		return res
	}
	defer func() {
		if err := cur.Close(); err != nil {
			b.log.Debug().Err(err).Str("queue", queue).Msg("closing browse cursor")
		}
	}()

	ids := newIDAllocator()
	for i := 0; i < b.maxMessages; i++ {
		d, ok, err := cur.Next(ctx)
		if err != nil {
			res.Err = err
			b.metrics.IncBrowseFailure(queue)
			b.log.Warn().Err(err).Str("queue", queue).Int("read", len(res.Items)).Msg("browse cut short")
			break
		}
		if !ok {
			break
		}
		msg, err := queueMessage(d, queue, i, ids, b.decoder)
		if err != nil {
			b.log.Warn().Err(err).Str("queue", queue).Msg("skipping unreadable message")
		}
		res.Items = append(res.Items, ItemResult{Message: msg, Err: err})
	}

	b.metrics.AddItemFailures(message.Key(message.Queue, queue), len(res.Failures()))
	return res
}

// session returns the session to browse on and a func releasing it.
func (b *Browser) session(fresh bool) (rabbitmq.Session, func(), error) {
	if fresh {
		sess, err := b.broker.NewSession()
		if err == nil {
			return sess, func() {
				if err := sess.Close(); err != nil {
					b.log.Debug().Err(err).Msg("closing browse session")
				}
			}, nil
		}
		b.log.Debug().Err(err).Msg("fresh session unavailable, using shared session")
	}
	sess, err := b.broker.Session()
	if err != nil {
		return nil, nil, err
	}
	return sess, func() {}, nil
}
