// Package metrics exposes GNSS ingestion counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grove-gnss/internal/gps"
)

const namespace = "grove_gnss"

// Source is what Watch samples at scrape time. *gps.Service satisfies it.
type Source interface {
	Snapshot() gps.Snapshot
}

// Metrics owns a private registry so tests and multiple instances never
// collide on the default one.
type Metrics struct {
	reg       *prometheus.Registry
	sentences *prometheus.CounterVec

	mu  sync.Mutex
	src Source
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sentences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_total",
			Help:      "NMEA lines classified by the aggregator, by sentence kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.reg.MustRegister(m.sentences)
	return m
}

// ObserveSentence implements gps.Observer.
func (m *Metrics) ObserveSentence(kind string, outcome gps.Outcome, _ string) {
	if kind == "" {
		kind = "none"
	}
	m.sentences.WithLabelValues(kind, outcome.String()).Inc()
}

// Watch registers the line and fix metrics backed by src. Only the first
// call has an effect.
func (m *Metrics) Watch(src Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src != nil || src == nil {
		return
	}
	m.src = src

	m.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Complete lines read from the port.",
		}, func() float64 { return float64(src.Snapshot().LinesRead) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dropped_total",
			Help:      "Lines dropped because the aggregator queue was full.",
		}, func() float64 { return float64(src.Snapshot().LinesDropped) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read from the port.",
		}, func() float64 { return float64(src.Snapshot().BytesRead) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_overflows_total",
			Help:      "Lines discarded for exceeding the 4096-byte line limit.",
		}, func() float64 { return float64(src.Snapshot().Overflows) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fix",
			Help:      "GGA fix quality (0 = no fix).",
		}, func() float64 { return float64(src.Snapshot().Nav.FixQuality) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "satellites_in_view",
			Help:      "Satellites in view from the last GSV report or GGA.",
		}, func() float64 { return float64(src.Snapshot().Nav.SatellitesInView) }),
	)
}

func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
