package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private prometheus registry so independent engines never
// collide on registration.
type Metrics struct {
	Registry *prometheus.Registry

	Evaluations  prometheus.Counter
	DomainErrors prometheus.Counter
	Events       *prometheus.CounterVec
	LogLike      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "charspan",
			Name:      "evaluations_total",
			Help:      "Likelihood evaluations performed.",
		}),
		DomainErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "charspan",
			Name:      "domain_errors_total",
			Help:      "Likelihood evaluations rejected for invalid parameters.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "charspan",
			Name:      "diagnostic_events_total",
			Help:      "Diagnostic events by name.",
		}, []string{"event"}),
		LogLike: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "charspan",
			Name:      "loglike",
			Help:      "Most recent committed log-likelihood.",
		}),
	}
	m.Registry.MustRegister(m.Evaluations, m.DomainErrors, m.Events, m.LogLike)
	return m
}

// Emit counts the event by name.
func (m *Metrics) Emit(e Event) {
	m.Events.WithLabelValues(e.Name).Inc()
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
