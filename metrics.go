package luxsession

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors updated by a Manager and its store.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	opened       prometheus.Counter
	created      prometheus.Counter
	restored     prometheus.Counter
	expired      prometheus.Counter
	collected    prometheus.Counter
	swapped      prometheus.Counter
	swapFailures prometheus.Counter
	live         prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "luxsession",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		opened:       counter("sessions_opened_total", "Sessions opened by the manager."),
		created:      counter("sessions_created_total", "Sessions created because no live session was found."),
		restored:     counter("sessions_restored_total", "Sessions restored from durable storage."),
		expired:      counter("sessions_expired_total", "Sessions found expired when opened."),
		collected:    counter("sessions_collected_total", "Expired sessions removed by garbage collection."),
		swapped:      counter("sessions_swapped_total", "Idle sessions moved to durable storage."),
		swapFailures: counter("sessions_swap_failures_total", "Idle sessions that could not be stored and stayed in memory."),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxsession",
			Name:      "sessions_live",
			Help:      "Sessions resident in memory.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.opened, m.created, m.restored, m.expired,
			m.collected, m.swapped, m.swapFailures, m.live)
	}
	return m
}

func (m *Metrics) setLive(n int) {
	if m != nil {
		m.live.Set(float64(n))
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.opened.Inc()
	}
}

func (m *Metrics) sessionCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) sessionRestored() {
	if m != nil {
		m.restored.Inc()
	}
}

func (m *Metrics) sessionExpired() {
	if m != nil {
		m.expired.Inc()
	}
}

func (m *Metrics) sessionsCollected(n int) {
	if m != nil {
		m.collected.Add(float64(n))
	}
}

func (m *Metrics) sessionSwapped() {
	if m != nil {
		m.swapped.Inc()
	}
}

func (m *Metrics) sessionSwapFailed() {
	if m != nil {
		m.swapFailures.Inc()
	}
}
