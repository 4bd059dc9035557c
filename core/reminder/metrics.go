package reminder

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the batch run collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	emails   *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onhold",
			Subsystem: "reminder",
			Name:      "runs_total",
			Help:      "Reminder batch runs by outcome.",
		}, []string{"outcome"}),
		emails: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "onhold",
			Subsystem: "reminder",
			Name:      "emails_total",
			Help:      "Reminder emails by result, one per owner group.",
		}, []string{"result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "onhold",
			Subsystem: "reminder",
			Name:      "run_duration_seconds",
			Help:      "Duration of reminder batch runs.",
			Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		}),
	}
}

func (m *Metrics) run(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) emailSent() {
	if m != nil {
		m.emails.WithLabelValues("sent").Inc()
	}
}

func (m *Metrics) emailFailed() {
	if m != nil {
		m.emails.WithLabelValues("failed").Inc()
	}
}
