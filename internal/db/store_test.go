package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_DefaultPath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Join(dataHome, "rabbitwatch", defaultFile)); err != nil {
		t.Errorf("archive not created under XDG_DATA_HOME: %v", err)
	}
}

func TestStore_StartAndEndRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := time.UnixMilli(1736937000000)
	store.now = func() time.Time { return clock }

	id, err := store.StartRun(ctx, "amqp://guest@localhost:5672/", []string{"orders"}, nil)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	clock = clock.Add(time.Minute)
	if err := store.EndRun(ctx, id); err != nil {
		t.Fatalf("EndRun: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID != id || r.Broker != "amqp://guest@localhost:5672/" {
		t.Errorf("run = %+v", r)
	}
	if len(r.Queues) != 1 || r.Queues[0] != "orders" || len(r.Topics) != 0 {
		t.Errorf("destinations = %v / %v", r.Queues, r.Topics)
	}
	if r.EndedAt.Sub(r.StartedAt) != time.Minute {
		t.Errorf("run lasted %v, want 1m", r.EndedAt.Sub(r.StartedAt))
	}
}

func TestStore_ListRunsOpenRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, _ := store.StartRun(ctx, "a", nil, nil)
	second, _ := store.StartRun(ctx, "b", nil, nil)

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != second || runs[1].ID != first {
		t.Fatalf("runs should be newest first, got %+v", runs)
	}
	if !runs[0].EndedAt.IsZero() {
		t.Error("open run should have zero EndedAt")
	}
}

func TestStore_InsertAndListMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	runID, err := store.StartRun(ctx, "broker", nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := NewMessageRecord(message.Message{
		ID:              "ID:1",
		Body:            "hello",
		Properties:      map[string]string{"content_type": "text/plain"},
		Destination:     "orders",
		Kind:            message.Queue,
		PayloadKind:     message.Text,
		TimestampMillis: 42,
	})
	rec.RunID = runID

	id, err := store.InsertMessage(ctx, rec)
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero row id")
	}

	again := *rec
	if id, err := store.InsertMessage(ctx, &again); err != nil || id != 0 {
		t.Errorf("duplicate insert = %d, %v; want 0, nil", id, err)
	}

	msgs, err := store.ListMessages(ctx, runID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	got := msgs[0]
	if got.MessageID != "ID:1" || got.Body != "hello" || got.Kind != "queue" || got.MessageType != "text" {
		t.Errorf("message = %+v", got)
	}
	if got.Properties["content_type"] != "text/plain" {
		t.Errorf("properties = %v", got.Properties)
	}
	if got.Timestamp != 42 {
		t.Errorf("timestamp = %d, want 42", got.Timestamp)
	}
}

func TestStore_SameIDOnDifferentDestinations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	runID, _ := store.StartRun(ctx, "broker", nil, nil)

	for _, dest := range []string{"orders", "invoices"} {
		if id, err := store.InsertMessage(ctx, &MessageRecord{
			RunID: runID, MessageID: "same", Destination: dest, Kind: "queue", MessageType: "text",
		}); err != nil || id == 0 {
			t.Fatalf("insert on %s = %d, %v", dest, id, err)
		}
	}

	msgs, err := store.ListMessages(ctx, runID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Properties == nil {
		t.Error("nil properties should round-trip as an empty map")
	}
}

func TestStore_SearchMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	runID, _ := store.StartRun(ctx, "broker", nil, nil)

	bodies := map[string]string{
		"m1": "payment accepted for invoice",
		"m2": "shipment dispatched",
		"m3": "payment refused",
	}
	for id, body := range bodies {
		if _, err := store.InsertMessage(ctx, &MessageRecord{
			RunID: runID, MessageID: id, Destination: "events", Kind: "topic", Body: body, MessageType: "text",
		}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"payment", 2},
		{"shipment", 1},
		{"events", 3},
		{"nothing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := store.SearchMessages(ctx, tt.query, 10, 0)
			if err != nil {
				t.Fatalf("SearchMessages: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("SearchMessages(%q) returned %d, want %d", tt.query, len(got), tt.want)
			}
		})
	}
}
