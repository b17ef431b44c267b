// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "prices_relay"

// Metrics implements exchanges.Observer, query.Recorder and
// supervisor.Recorder.
type Metrics struct {
	TicksTotal        *prometheus.CounterVec
	TicksDroppedTotal *prometheus.CounterVec
	ReconnectsTotal   *prometheus.CounterVec
	FeedRestartsTotal *prometheus.CounterVec
	QueriesTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them, together with a gauge
// reporting pairs(), on reg.
func New(reg prometheus.Registerer, pairs func() int) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Ticker records received per exchange",
		}, []string{"exchange"}),
		TicksDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Ticker records discarded before reaching the store",
		}, []string{"exchange", "reason"}),
		ReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Stream reconnect attempts by cause",
		}, []string{"exchange", "kind"}),
		FeedRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_restarts_total",
			Help:      "Feeds restarted by the supervisor after a failure",
		}, []string{"exchange"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Client queries served by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TicksDroppedTotal,
		m.ReconnectsTotal,
		m.FeedRestartsTotal,
		m.QueriesTotal,
	)
	if pairs != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs",
			Help:      "Canonical pairs with at least one price",
		}, func() float64 { return float64(pairs()) }))
	}
	return m
}

func (m *Metrics) TickReceived(exchange string) {
	m.TicksTotal.WithLabelValues(exchange).Inc()
}

func (m *Metrics) TickDropped(exchange, reason string) {
	m.TicksDroppedTotal.WithLabelValues(exchange, reason).Inc()
}

func (m *Metrics) Reconnect(exchange, kind string) {
	m.ReconnectsTotal.WithLabelValues(exchange, kind).Inc()
}

func (m *Metrics) FeedRestarted(exchange string) {
	m.FeedRestartsTotal.WithLabelValues(exchange).Inc()
}

func (m *Metrics) QueryServed(result string) {
	m.QueriesTotal.WithLabelValues(result).Inc()
}
