package monitor

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// Sink receives engine events. Methods are called concurrently from the
// poll loop, topic delivery goroutines and command callers, so
// implementations must be safe for concurrent use and must not block.
type Sink interface {
	DestinationsUpdated(queues, topics []string)
	// MessagesUpdated carries either a full cache snapshot or the result of
	// an on-demand browse.
	MessagesUpdated(msgs []message.Message)
	Log(line string)
	// Error is advisory. It never means the session has ended.
	Error(line string)
}

type NopSink struct{}

func (NopSink) DestinationsUpdated(queues, topics []string) {}
func (NopSink) MessagesUpdated(msgs []message.Message)      {}
func (NopSink) Log(line string)                             {}
func (NopSink) Error(line string)                           {}

// MultiSink fans every event out to each sink in order.
type MultiSink []Sink

func (m MultiSink) DestinationsUpdated(queues, topics []string) {
	for _, s := range m {
		s.DestinationsUpdated(queues, topics)
	}
}

func (m MultiSink) MessagesUpdated(msgs []message.Message) {
	for _, s := range m {
		s.MessagesUpdated(msgs)
	}
}

func (m MultiSink) Log(line string) {
	for _, s := range m {
		s.Log(line)
	}
}

func (m MultiSink) Error(line string) {
	for _, s := range m {
		s.Error(line)
	}
}

type EventKind int

const (
	EventDestinations EventKind = iota
	EventMessages
	EventLog
	EventError
)

// Event is one Sink call, as delivered by ChannelSink.
type Event struct {
	Kind     EventKind
	Queues   []string
	Topics   []string
	Messages []message.Message
	Text     string
}

// ChannelSink delivers events on a bounded channel. When the channel is
// full the event is dropped and counted.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Int64
}

func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 64
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

// Events returns the receive side of the channel. It is never closed.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the consumer fell
// behind.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *ChannelSink) send(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) DestinationsUpdated(queues, topics []string) {
	s.send(Event{Kind: EventDestinations, Queues: queues, Topics: topics})
}

func (s *ChannelSink) MessagesUpdated(msgs []message.Message) {
	s.send(Event{Kind: EventMessages, Messages: msgs})
}

func (s *ChannelSink) Log(line string) {
	s.send(Event{Kind: EventLog, Text: line})
}

func (s *ChannelSink) Error(line string) {
	s.send(Event{Kind: EventError, Text: line})
}

// notifier writes diagnostics to the structured log and mirrors them to
// the sink as log or error lines.
type notifier struct {
	log  zerolog.Logger
	sink Sink
}

func (n notifier) info(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	n.log.Info().Msg(line)
	n.sink.Log(line)
}

func (n notifier) warn(err error, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	n.log.Warn().Err(err).Msg(line)
	if err != nil {
		line += ": " + err.Error()
	}
	n.sink.Log(line)
}

func (n notifier) error(err error, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	n.log.Error().Err(err).Msg(line)
	if err != nil {
		line += ": " + err.Error()
	}
	n.sink.Error(line)
}
