// Package metrics exposes engine counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	browses         *prometheus.CounterVec
	browseFailures  *prometheus.CounterVec
	itemFailures    *prometheus.CounterVec
	topicMessages   *prometheus.CounterVec
	snapshots       prometheus.Counter
	discoveries     *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	cachedMessages  prometheus.Gauge
	monitoringState prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		browses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rabbitwatch_queue_browses_total",
			Help: "Queue browse scans, by queue",
		}, []string{"queue"}),
		browseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rabbitwatch_queue_browse_failures_total",
			Help: "Queue browse scans aborted by a cursor or session failure",
		}, []string{"queue"}),
		itemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rabbitwatch_message_read_failures_total",
			Help: "Messages skipped because they could not be read",
		}, []string{"destination"}),
		topicMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rabbitwatch_topic_messages_total",
			Help: "Messages delivered to topic subscriptions",
		}, []string{"topic"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rabbitwatch_snapshots_total",
			Help: "Full cache snapshots broadcast to the consumer",
		}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rabbitwatch_discoveries_total",
			Help: "Destination discoveries, by the source that answered",
		}, []string{"source"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rabbitwatch_topic_subscriptions",
			Help: "Open topic subscriptions",
		}),
		cachedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rabbitwatch_cached_messages",
			Help: "Messages held in the cache after the last broadcast",
		}),
		monitoringState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rabbitwatch_monitoring_running",
			Help: "1 while a monitoring session is running",
		}),
	}

	collectors := []prometheus.Collector{
		m.browses,
		m.browseFailures,
		m.itemFailures,
		m.topicMessages,
		m.snapshots,
		m.discoveries,
		m.subscriptions,
		m.cachedMessages,
		m.monitoringState,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncBrowse(queue string) {
	if m == nil {
		return
	}
	m.browses.WithLabelValues(queue).Inc()
}

func (m *Metrics) IncBrowseFailure(queue string) {
	if m == nil {
		return
	}
	m.browseFailures.WithLabelValues(queue).Inc()
}

func (m *Metrics) AddItemFailures(destination string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemFailures.WithLabelValues(destination).Add(float64(n))
}

func (m *Metrics) IncTopicMessage(topic string) {
	if m == nil {
		return
	}
	m.topicMessages.WithLabelValues(topic).Inc()
}

// ObserveSnapshot counts a broadcast and records its size.
func (m *Metrics) ObserveSnapshot(size int) {
	if m == nil {
		return
	}
	m.snapshots.Inc()
	m.cachedMessages.Set(float64(size))
}

// IncDiscovery counts a discovery answered by source ("management",
// "advisory", "cached" or "none").
func (m *Metrics) IncDiscovery(source string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(source).Inc()
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.subscriptions.Set(float64(n))
}

func (m *Metrics) SetRunning(running bool) {
	if m == nil {
		return
	}
	if running {
		m.monitoringState.Set(1)
		return
	}
	m.monitoringState.Set(0)
}
