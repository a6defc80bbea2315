package correlator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports correlator activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	mu sync.Mutex

	pendingGauge    prometheus.Gauge
	registeredTotal prometheus.Counter
	deliveredTotal  prometheus.Counter
	cancelledTotal  prometheus.Counter
	lateTotal       prometheus.Counter
	duplicateTotal  prometheus.Counter
	latencySeconds  prometheus.Histogram

	registerer prometheus.Registerer
	isReg      bool
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "t2rpc",
		Subsystem: "correlator",
		Name:      name,
		Help:      help,
	})
}

// NewMetrics creates the collectors. A nil registerer selects
// prometheus.DefaultRegisterer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "t2rpc",
			Subsystem: "correlator",
			Name:      "pending",
			Help:      "Requests waiting for an answer",
		}),
		registeredTotal: newCounter("registered_total", "Requests registered for an answer"),
		deliveredTotal:  newCounter("delivered_total", "Answers delivered to a waiting request"),
		cancelledTotal:  newCounter("cancelled_total", "Requests abandoned before their answer arrived"),
		lateTotal:       newCounter("late_total", "Answers that found no waiting request"),
		duplicateTotal:  newCounter("duplicate_total", "Registrations rejected because the identity was outstanding"),
		latencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "t2rpc",
			Subsystem: "correlator",
			Name:      "answer_latency_seconds",
			Help:      "Time from registration to delivery",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isReg {
		return nil
	}
	collectors := []prometheus.Collector{
		m.pendingGauge,
		m.registeredTotal,
		m.deliveredTotal,
		m.cancelledTotal,
		m.lateTotal,
		m.duplicateTotal,
		m.latencySeconds,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	m.isReg = true
	return nil
}

func (m *Metrics) registered() {
	if m == nil {
		return
	}
	m.registeredTotal.Inc()
	m.pendingGauge.Inc()
}

func (m *Metrics) delivered(waited time.Duration) {
	if m == nil {
		return
	}
	m.deliveredTotal.Inc()
	m.pendingGauge.Dec()
	m.latencySeconds.Observe(waited.Seconds())
}

func (m *Metrics) cancelled() {
	if m == nil {
		return
	}
	m.cancelledTotal.Inc()
	m.pendingGauge.Dec()
}

func (m *Metrics) late() {
	if m == nil {
		return
	}
	m.lateTotal.Inc()
}

func (m *Metrics) duplicate() {
	if m == nil {
		return
	}
	m.duplicateTotal.Inc()
}
