package db

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultBufferSize = 1000

// AsyncWriter provides non-blocking message persistence with a buffered channel.
type AsyncWriter struct {
	store   Store
	runID   int64
	log     zerolog.Logger
	ch      chan *MessageRecord
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsyncWriter creates a writer that stamps every record with runID.
func NewAsyncWriter(store Store, runID int64, log zerolog.Logger) *AsyncWriter {
	w := &AsyncWriter{
		store: store,
		runID: runID,
		log:   log,
		ch:    make(chan *MessageRecord, defaultBufferSize),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Save queues a message for persistence. Non-blocking; drops the message if
// the buffer is full or the writer is closed.
func (w *AsyncWriter) Save(msg *MessageRecord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	msg.RunID = w.runID
	select {
	case w.ch <- msg:
		return true
	default:
		w.dropped.Add(1)
		return false
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for msg := range w.ch {
		if _, err := w.store.InsertMessage(context.Background(), msg); err != nil {
			w.failed.Add(1)
			w.log.Debug().Err(err).Str("id", msg.MessageID).Msg("archive insert failed")
		}
	}
}

// Dropped reports how many records were discarded because the buffer was full.
func (w *AsyncWriter) Dropped() int64 { return w.dropped.Load() }

// Failed reports how many inserts returned an error.
func (w *AsyncWriter) Failed() int64 { return w.failed.Load() }

// Close stops accepting records and waits for the buffer to drain.
func (w *AsyncWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()
	w.wg.Wait()
}
