package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// messagePrinter writes messages to out, one per line, either as text or
// as JSON records.
type messagePrinter struct {
	out  io.Writer
	json bool
}

func (p messagePrinter) print(m message.Message) error {
	if p.json {
		data, err := json.Marshal(m.Record())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}

	ts := "--:--:--"
	if m.TimestampMillis != 0 {
		ts = time.UnixMilli(m.TimestampMillis).Format("15:04:05")
	}
	_, err := fmt.Fprintf(p.out, "%s %s %s [%s] %s\n", ts, m.Dest(), m.ID, m.MessageType(), m.Body)
	return err
}

// streamSink prints every message the first time a snapshot contains it.
// Repeated deliveries on a topic are printed once per delivery.
// Diagnostics already reach the structured log, so only messages are
// printed.
type streamSink struct {
	printer messagePrinter

	mu   sync.Mutex
	seen map[string]struct{}
	errs int
}

func newStreamSink(p messagePrinter) *streamSink {
	return &streamSink{printer: p, seen: make(map[string]struct{})}
}

func (s *streamSink) MessagesUpdated(msgs []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range message.Occurrences(msgs) {
		m := msgs[i]
		key := m.Dest().Key() + ":" + id
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		if err := s.printer.print(m); err != nil {
			s.errs++
		}
	}
}

func (s *streamSink) printed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen) - s.errs
}

// failed counts messages that could not be written to the output.
func (s *streamSink) failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs
}

func (s *streamSink) DestinationsUpdated(queues, topics []string) {}
func (s *streamSink) Log(string)                                 {}
func (s *streamSink) Error(string)                               {}
