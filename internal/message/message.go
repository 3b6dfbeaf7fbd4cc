// Package message holds the record that flows from the broker adapters
// through the cache to the consumer.
package message

import (
	"fmt"
	"strings"
)

// Kind is the type of a broker destination.
type Kind int

const (
	Queue Kind = iota
	Topic
)

func (k Kind) String() string {
	switch k {
	case Queue:
		return "queue"
	case Topic:
		return "topic"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind accepts "queue" or "topic" (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "queue", "q":
		return Queue, nil
	case "topic", "t", "exchange":
		return Topic, nil
	}
	return 0, fmt.Errorf("unknown destination kind %q", s)
}

// Destination identifies a queue or topic. Identity is (Kind, Name).
type Destination struct {
	Name string
	Kind Kind
}

// Key returns the cache key for the destination, e.g. "queue:orders".
func (d Destination) Key() string {
	return Key(d.Kind, d.Name)
}

func (d Destination) String() string {
	return d.Key()
}

// Key builds the "{kind}:{name}" cache key.
func Key(kind Kind, name string) string {
	return kind.String() + ":" + name
}

// PayloadKind classifies a message body. The set is closed: a new payload
// encoding needs a new constant here and a row in the classifier table.
type PayloadKind int

const (
	Text PayloadKind = iota
	Bytes
	Map
	Object
	Stream
	Unknown
)

var payloadKindNames = [...]string{
	Text:    "text",
	Bytes:   "bytes",
	Map:     "map",
	Object:  "object",
	Stream:  "stream",
	Unknown: "unknown",
}

func (p PayloadKind) String() string {
	if p < 0 || int(p) >= len(payloadKindNames) {
		return "unknown"
	}
	return payloadKindNames[p]
}

// Message is one observed broker message.
type Message struct {
	ID          string
	Body        string
	Properties  map[string]string
	Destination string
	Kind        Kind
	PayloadKind PayloadKind
	// Fallback is set when the payload kind was inferred from the body
	// instead of being declared by the producer.
	Fallback        bool
	TimestampMillis int64
}

// Dest returns the destination the message was observed on.
func (m Message) Dest() Destination {
	return Destination{Name: m.Destination, Kind: m.Kind}
}

// MessageType renders the payload kind the way it is exported, including
// the fallback variant.
func (m Message) MessageType() string {
	if m.Fallback {
		return m.PayloadKind.String() + " (fallback)"
	}
	return m.PayloadKind.String()
}

// Record is the external representation handed to exporters and the
// clipboard. The field set is fixed.
type Record struct {
	ID          string            `json:"id"`
	Body        string            `json:"body"`
	Properties  map[string]string `json:"properties"`
	Destination string            `json:"destination"`
	Type        string            `json:"type"`
	MessageType string            `json:"message_type"`
	Timestamp   int64             `json:"timestamp"`
}

// Record converts the message to its external form.
func (m Message) Record() Record {
	props := m.Properties
	if props == nil {
		props = map[string]string{}
	}
	return Record{
		ID:          m.ID,
		Body:        m.Body,
		Properties:  props,
		Destination: m.Destination,
		Type:        m.Kind.String(),
		MessageType: m.MessageType(),
		Timestamp:   m.TimestampMillis,
	}
}

// IDs returns the set of message ids in msgs.
func IDs(msgs []Message) map[string]struct{} {
	ids := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		ids[m.ID] = struct{}{}
	}
	return ids
}

// Occurrences returns an identity for every message in msgs, in order.
// Topic entries may repeat an id, so the nth copy (n > 1) of an id on one
// topic becomes "id#n". Queue ids are returned as they are. Topic entries
// only grow, which keeps these identities stable across snapshots.
func Occurrences(msgs []Message) []string {
	out := make([]string, len(msgs))
	counts := make(map[string]int)
	for i, m := range msgs {
		if m.Kind != Topic {
			out[i] = m.ID
			continue
		}
		key := m.Dest().Key() + ":" + m.ID
		counts[key]++
		if n := counts[key]; n > 1 {
			out[i] = fmt.Sprintf("%s#%d", m.ID, n)
		} else {
			out[i] = m.ID
		}
	}
	return out
}
