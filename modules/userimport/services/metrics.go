package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	batchesTotal *prometheus.CounterVec
	rowsTotal    *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
	phaseLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		batchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userimport",
			Name:      "batches_total",
			Help:      "Import batches by phase and result.",
		}, []string{"phase", "result"}),
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userimport",
			Name:      "rows_total",
			Help:      "Committed rows by outcome.",
		}, []string{"outcome"}),
		diagnostics: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "userimport",
			Name:      "diagnostics_total",
			Help:      "Preview diagnostics by severity and code.",
		}, []string{"severity", "code"}),
		phaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "userimport",
			Name:      "phase_duration_seconds",
			Help:      "Duration of the preview and commit phases.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"phase"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func recordRow(o Outcome) {
	getMetrics().rowsTotal.WithLabelValues(string(o)).Inc()
}

func recordDiagnostics(ds []Diagnostic) {
	m := getMetrics()
	for _, d := range ds {
		m.diagnostics.WithLabelValues(d.Severity.String(), string(d.Code)).Inc()
	}
}
