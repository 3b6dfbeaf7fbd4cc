package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// Delivery is a broker message as read from a queue or exchange.
type Delivery struct {
	MessageID     string
	Type          string
	ContentType   string
	CorrelationID string
	ReplyTo       string
	AppID         string
	UserID        string
	RoutingKey    string
	Exchange      string
	Redelivered   bool
	Timestamp     time.Time
	Headers       amqp.Table
	Body          []byte
}

func fromAMQP(d amqp.Delivery) Delivery {
	return Delivery{
		MessageID:     d.MessageId,
		Type:          d.Type,
		ContentType:   d.ContentType,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		AppID:         d.AppId,
		UserID:        d.UserId,
		RoutingKey:    d.RoutingKey,
		Exchange:      d.Exchange,
		Redelivered:   d.Redelivered,
		Timestamp:     d.Timestamp,
		Headers:       d.Headers,
		Body:          d.Body,
	}
}

// Broker hands out sessions on the current connection.
type Broker interface {
	Connected() bool
	// Session returns the long-lived shared session.
	Session() (Session, error)
	// NewSession opens an independent session. The caller must Close it.
	NewSession() (Session, error)
}

// Session is one AMQP channel.
type Session interface {
	// Browse opens a non-destructive cursor over the queue's ready messages.
	Browse(ctx context.Context, queue string) (Cursor, error)
	// Subscribe binds a private queue to exchange and calls handler for
	// every delivery, on the consumer's own goroutine.
	Subscribe(ctx context.Context, exchange, bindingKey string, handler func(Delivery)) (Consumer, error)
	// Listen binds a private queue to exchange for pull-style receives.
	Listen(ctx context.Context, exchange, bindingKey string) (Receiver, error)
	Publish(ctx context.Context, dest message.Destination, body string, props map[string]string) error
	Close() error
}

// Cursor enumerates a queue snapshot. Next returns false once exhausted.
// Messages are returned to the queue when the cursor is closed.
type Cursor interface {
	Next(ctx context.Context) (Delivery, bool, error)
	Close() error
}

type Consumer interface {
	Close() error
}

// Receiver is a pull consumer. Receive waits at most timeout.
type Receiver interface {
	Receive(ctx context.Context, timeout time.Duration) (Delivery, bool, error)
	Close() error
}
