package db

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

// Recorder archives every message the first time it appears in a snapshot.
// Repeated deliveries on a topic are archived as "id#n".
// It satisfies the monitor's event sink and ignores everything but message
// updates.
type Recorder struct {
	store  Store
	runID  int64
	writer *AsyncWriter
	log    zerolog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewRecorder opens a run in store and returns a recorder writing into it.
func NewRecorder(ctx context.Context, store Store, broker string, queues, topics []string, log zerolog.Logger) (*Recorder, error) {
	runID, err := store.StartRun(ctx, broker, queues, topics)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("component", "recorder").Int64("run", runID).Logger()
	return &Recorder{
		store:  store,
		runID:  runID,
		writer: NewAsyncWriter(store, runID, log),
		log:    log,
		seen:   make(map[string]struct{}),
	}, nil
}

// RunID returns the archive run this recorder writes to.
func (r *Recorder) RunID() int64 { return r.runID }

func (r *Recorder) MessagesUpdated(msgs []message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, id := range message.Occurrences(msgs) {
		m := msgs[i]
		key := m.Dest().Key() + ":" + id
		if _, ok := r.seen[key]; ok {
			continue
		}
		rec := NewMessageRecord(m)
		rec.MessageID = id
		if !r.writer.Save(rec) {
			r.log.Warn().Str("id", m.ID).Msg("archive buffer full, message not recorded")
			continue
		}
		r.seen[key] = struct{}{}
	}
}

func (r *Recorder) DestinationsUpdated(queues, topics []string) {}

func (r *Recorder) Log(string) {}

func (r *Recorder) Error(string) {}

// Close flushes pending records and ends the run.
func (r *Recorder) Close(ctx context.Context) error {
	r.writer.Close()
	r.log.Info().
		Int("recorded", r.recorded()).
		Int64("dropped", r.writer.Dropped()).
		Int64("failed", r.writer.Failed()).
		Msg("archive closed")
	return r.store.EndRun(ctx, r.runID)
}

func (r *Recorder) recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}
