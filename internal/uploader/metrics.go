package uploader

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the outbox's health: queue depth and terminal outcomes.
type Metrics struct {
	Depth prometheus.Gauge
	Tasks *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upload_queue_depth",
			Help: "Number of upload tasks waiting in the outbox.",
		}),
		Tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "upload_tasks_total",
			Help: "Terminal upload task outcomes.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Depth, m.Tasks)
	}
	return m
}
