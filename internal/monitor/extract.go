package monitor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
	"github.com/epalmerini/rabbitwatch/internal/rabbitmq"
)

// idAllocator assigns message ids within one browse. Producers that do not
// set message-id get a content digest; a repeated id gets a "#n" suffix so
// ids stay unique within the entry and stable across identical browses.
type idAllocator struct {
	seen map[string]int
}

func newIDAllocator() *idAllocator {
	return &idAllocator{seen: make(map[string]int)}
}

func (a *idAllocator) next(d rabbitmq.Delivery) string {
	id := deliveryID(d)
	n := a.seen[id]
	a.seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s#%d", id, n+1)
}

func deliveryID(d rabbitmq.Delivery) string {
	if d.MessageID != "" {
		return d.MessageID
	}
	return contentDigest(d)
}

func contentDigest(d rabbitmq.Delivery) string {
	h := sha1.New()
	h.Write([]byte(d.RoutingKey))
	h.Write([]byte{0})
	if !d.Timestamp.IsZero() {
		h.Write([]byte(strconv.FormatInt(d.Timestamp.UnixNano(), 10)))
	}
	h.Write([]byte{0})
	for _, k := range sortedKeys(d.Headers) {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(formatValue(d.Headers[k])))
		h.Write([]byte{0})
	}
	h.Write(d.Body)
	return "sha1:" + hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// properties flattens headers and the standard AMQP properties into
// strings. Standard properties win over a header of the same name.
func properties(d rabbitmq.Delivery) map[string]string {
	props := make(map[string]string, len(d.Headers)+8)
	for k, v := range d.Headers {
		props[k] = formatValue(v)
	}

	set := func(k, v string) {
		if v != "" {
			props[k] = v
		}
	}
	set("content_type", d.ContentType)
	set("type", d.Type)
	set("message_id", d.MessageID)
	set("correlation_id", d.CorrelationID)
	set("reply_to", d.ReplyTo)
	set("app_id", d.AppID)
	set("user_id", d.UserID)
	set("exchange", d.Exchange)
	set("routing_key", d.RoutingKey)
	if d.Redelivered {
		props["redelivered"] = "true"
	}
	return props
}

func timestampMillis(d rabbitmq.Delivery) int64 {
	if d.Timestamp.IsZero() {
		return time.Now().UnixMilli()
	}
	return d.Timestamp.UnixMilli()
}

// queueMessage builds a message read from a queue browse.
func queueMessage(d rabbitmq.Delivery, queue string, index int, ids *idAllocator, dec PayloadDecoder) (message.Message, error) {
	if err := d.Headers.Validate(); err != nil {
		return message.Message{}, &ItemError{Destination: message.Key(message.Queue, queue), Index: index, Err: err}
	}
	r := renderPayload(d, dec)
	return message.Message{
		ID:              ids.next(d),
		Body:            r.body,
		Properties:      properties(d),
		Destination:     queue,
		Kind:            message.Queue,
		PayloadKind:     r.kind,
		Fallback:        r.fallback,
		TimestampMillis: timestampMillis(d),
	}, nil
}

// topicMessage builds a message delivered to a topic subscription.
func topicMessage(d rabbitmq.Delivery, topic string) (message.Message, error) {
	if err := d.Headers.Validate(); err != nil {
		return message.Message{}, &ItemError{Destination: message.Key(message.Topic, topic), Index: -1, Err: err}
	}
	r := textOrStringified(d.Body)
	return message.Message{
		ID:              deliveryID(d),
		Body:            r.body,
		Properties:      properties(d),
		Destination:     topic,
		Kind:            message.Topic,
		PayloadKind:     r.kind,
		Fallback:        r.fallback,
		TimestampMillis: timestampMillis(d),
	}, nil
}
