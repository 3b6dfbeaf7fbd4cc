package monitor

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epalmerini/rabbitwatch/internal/message"
)

func TestChannelSink_DropsWhenFull(t *testing.T) {
	s := NewChannelSink(2)

	s.Log("one")
	s.Error("two")
	s.MessagesUpdated([]message.Message{{ID: "x"}})

	assert.Equal(t, int64(1), s.Dropped())

	ev := <-s.Events()
	assert.Equal(t, EventLog, ev.Kind)
	assert.Equal(t, "one", ev.Text)
	ev = <-s.Events()
	assert.Equal(t, EventError, ev.Kind)
}

func TestChannelSink_DestinationsEvent(t *testing.T) {
	s := NewChannelSink(0)
	s.DestinationsUpdated([]string{"orders"}, []string{"alerts"})

	ev := <-s.Events()
	assert.Equal(t, EventDestinations, ev.Kind)
	assert.Equal(t, []string{"orders"}, ev.Queues)
	assert.Equal(t, []string{"alerts"}, ev.Topics)
}

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, b, NopSink{}}

	m.Log("hello")
	m.Error("boom")
	m.MessagesUpdated(nil)
	m.DestinationsUpdated(nil, nil)

	for _, s := range []*recordingSink{a, b} {
		assert.Equal(t, []string{"hello"}, s.logLines())
		assert.Equal(t, []string{"boom"}, s.errorLines())
		assert.Equal(t, 1, s.snapshotCount())
		assert.Len(t, s.dests, 1)
	}
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	sink := &recordingSink{}
	n := notifier{log: zerolog.New(&buf), sink: sink}

	n.info("monitoring %d queues", 2)
	n.warn(errors.New("timeout"), "browse of %s failed", "orders")
	n.error(errors.New("refused"), "cannot subscribe")

	assert.Equal(t, []string{"monitoring 2 queues", "browse of orders failed: timeout"}, sink.logLines())
	require.Len(t, sink.errorLines(), 1)
	assert.Equal(t, "cannot subscribe: refused", sink.errorLines()[0])
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"refused"`)
}
