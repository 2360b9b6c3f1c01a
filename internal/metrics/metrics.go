package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesconsumer"

// Message outcomes.
const (
	OutcomeInserted    = "inserted"
	OutcomeUpdated     = "updated"
	OutcomeQuarantined = "quarantined"
	OutcomeFailed      = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	Messages    *prometheus.CounterVec
	Quarantined *prometheus.CounterVec
	Retries     prometheus.Counter
	Processing  prometheus.Histogram
	Relayed     prometheus.Counter
}

// New registers the consumer metrics, plus Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages consumed, by object type and outcome.",
		}, []string{"object_type", "outcome"}),
		Quarantined: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quarantined_total",
			Help:      "Messages written to quarantine, by reason.",
		}, []string{"reason"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Store attempts that failed and were retried.",
		}),
		Processing: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time spent handling one message.",
			Buckets:   prometheus.DefBuckets,
		}),
		Relayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_relayed_total",
			Help:      "Quarantine entries published to the dead-letter topic.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
