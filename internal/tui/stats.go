package tui

import (
	"fmt"
	"time"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

const statsWindow = 10 * time.Second

// stats tracks how fast new messages show up in snapshots and how large
// they are. A message counts once, the first time its key is seen.
type stats struct {
	msgTimes      []time.Time
	totalMessages int64
	totalBytes    int64
	seen          map[string]struct{}
}

// observe records every message of a snapshot not seen before.
func (s *stats) observe(now time.Time, msgs []message.Message) int {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	fresh := 0
	for _, m := range msgs {
		key := m.Dest().Key() + ":" + m.ID
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.record(now, len(m.Body))
		fresh++
	}
	return fresh
}

// record logs a message arrival.
func (s *stats) record(t time.Time, bodySize int) {
	s.msgTimes = append(s.msgTimes, t)
	s.totalMessages++
	s.totalBytes += int64(bodySize)
}

// msgPerSec returns the message rate over the rolling window.
func (s *stats) msgPerSec(now time.Time) float64 {
	cutoff := now.Add(-statsWindow)

	i := 0
	for i < len(s.msgTimes) && s.msgTimes[i].Before(cutoff) {
		i++
	}
	s.msgTimes = s.msgTimes[i:]

	if len(s.msgTimes) == 0 {
		return 0
	}

	elapsed := now.Sub(s.msgTimes[0]).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(len(s.msgTimes)) / elapsed
}

// avgSize returns average message body size in bytes.
func (s *stats) avgSize() int64 {
	if s.totalMessages == 0 {
		return 0
	}
	return s.totalBytes / s.totalMessages
}

func (s *stats) reset() {
	*s = stats{}
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f msg/s", rate)
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
