package reminder

import "github.com/prometheus/client_golang/prometheus"

// EmailsCounter exposes the emails counter to the black-box tests.
func EmailsCounter(m *Metrics, result string) prometheus.Collector {
	return m.emails.WithLabelValues(result)
}

// RunsCounter exposes the runs counter to the black-box tests.
func RunsCounter(m *Metrics, outcome string) prometheus.Collector {
	return m.runs.WithLabelValues(outcome)
}
