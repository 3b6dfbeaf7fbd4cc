package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

func TestMessagePrinter(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 20, 30, 0, time.Local).UnixMilli()
	msg := message.Message{
		ID:              "ID:1",
		Destination:     "orders",
		Kind:            message.Queue,
		Body:            "hello",
		TimestampMillis: ts,
	}

	tests := []struct {
		name string
		json bool
		msg  message.Message
		want string
	}{
		{"text", false, msg, "10:20:30 queue:orders ID:1 [text] hello\n"},
		{"no timestamp", false, message.Message{ID: "x", Destination: "audit", Kind: message.Topic, PayloadKind: message.Map, Fallback: true},
			"--:--:-- topic:audit x [map (fallback)] \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (messagePrinter{out: &buf, json: tt.json}).print(tt.msg); err != nil {
				t.Fatalf("print: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestMessagePrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	msg := message.Message{ID: "1", Destination: "orders", Kind: message.Queue, Body: "b"}
	if err := (messagePrinter{out: &buf, json: true}).print(msg); err != nil {
		t.Fatalf("print: %v", err)
	}

	var rec message.Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not a JSON record: %v", err)
	}
	if rec.ID != "1" || rec.Type != "queue" || rec.Properties == nil {
		t.Errorf("record = %+v", rec)
	}
}

func TestStreamSink_PrintsEachMessageOnce(t *testing.T) {
	var buf bytes.Buffer
	s := newStreamSink(messagePrinter{out: &buf})

	first := []message.Message{
		{ID: "1", Destination: "orders", Kind: message.Queue},
		{ID: "2", Destination: "orders", Kind: message.Queue},
	}
	s.MessagesUpdated(first)
	s.MessagesUpdated(append(first, message.Message{ID: "1", Destination: "audit", Kind: message.Topic}))
	s.MessagesUpdated(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("printed %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if s.printed() != 3 {
		t.Errorf("printed() = %d, want 3", s.printed())
	}
	if !strings.Contains(lines[2], "topic:audit") {
		t.Errorf("last line = %q", lines[2])
	}
}

func TestStreamSink_RepeatedTopicDeliveries(t *testing.T) {
	var buf bytes.Buffer
	s := newStreamSink(messagePrinter{out: &buf})

	ping := message.Message{ID: "sha1:ed8bd6fc", Body: "ping", Destination: "alerts", Kind: message.Topic}
	s.MessagesUpdated([]message.Message{ping})
	s.MessagesUpdated([]message.Message{ping, ping})
	s.MessagesUpdated([]message.Message{ping, ping})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("printed %d lines for 2 deliveries:\n%s", len(lines), buf.String())
	}
	if s.printed() != 2 {
		t.Errorf("printed() = %d, want 2", s.printed())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamSink_CountsWriteFailures(t *testing.T) {
	s := newStreamSink(messagePrinter{out: failingWriter{}})

	s.MessagesUpdated([]message.Message{
		{ID: "1", Destination: "orders", Kind: message.Queue},
		{ID: "2", Destination: "orders", Kind: message.Queue},
	})

	if s.failed() != 2 {
		t.Errorf("failed() = %d, want 2", s.failed())
	}
	if s.printed() != 0 {
		t.Errorf("printed() = %d, want 0", s.printed())
	}
}
