package monitor

import (
	"context"
	"slices"
	"sync/atomic"
	"time"
)

// Session is one monitoring run: what is watched and what the poll loop has
// seen so far. A Session is never reused; starting again creates a new one.
//
// queues and topics are fixed at creation. lastSeen and lastPoll are
// written only by the session's poll loop, inside the cache lock.
type Session struct {
	queues []string
	topics []string

	lastSeen map[string]map[string]struct{}
	lastPoll map[string]time.Time

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newSession(parent context.Context, queues, topics []string) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	return &Session{
		queues:   queues,
		topics:   topics,
		lastSeen: make(map[string]map[string]struct{}, len(queues)),
		lastPoll: make(map[string]time.Time, len(queues)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (s *Session) Queues() []string { return slices.Clone(s.queues) }
func (s *Session) Topics() []string { return slices.Clone(s.topics) }
func (s *Session) Running() bool    { return s.running.Load() }

// due reports whether queue has not been polled for at least interval.
func (s *Session) due(queue string, now time.Time, interval time.Duration) bool {
	last, ok := s.lastPoll[queue]
	return !ok || now.Sub(last) >= interval
}

// hasNew reports whether ids contains an id not seen on the previous poll
// of queue.
func (s *Session) hasNew(queue string, ids map[string]struct{}) bool {
	seen := s.lastSeen[queue]
	for id := range ids {
		if _, ok := seen[id]; !ok {
			return true
		}
	}
	return false
}

// uniqueNames returns names without blanks or duplicates, sorted.
func uniqueNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
