package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records queue activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	jobsScheduled *prometheus.CounterVec
	jobsProcessed *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	queueDepth    *prometheus.GaugeVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		jobsScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csa_jobs_scheduled_total",
				Help: "Deferred actions registered, by queue and kind.",
			},
			[]string{"queue", "kind"},
		),
		jobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csa_jobs_processed_total",
				Help: "Deferred action attempts, by queue, kind and outcome.",
			},
			[]string{"queue", "kind", "outcome"}, // completed | retried | failed
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csa_job_duration_seconds",
				Help:    "Time spent running one deferred action attempt.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue", "kind"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "csa_queue_depth",
				Help: "Jobs waiting in each queue.",
			},
			[]string{"queue"},
		),
	}

	registerer.MustRegister(m.jobsScheduled, m.jobsProcessed, m.jobDuration, m.queueDepth)
	return m
}

func (m *Metrics) scheduled(queue QueueName, kind Kind) {
	if m == nil {
		return
	}
	m.jobsScheduled.WithLabelValues(string(queue), string(kind)).Inc()
}

func (m *Metrics) processed(queue QueueName, kind Kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(string(queue), string(kind), outcome).Inc()
	m.jobDuration.WithLabelValues(string(queue), string(kind)).Observe(took.Seconds())
}

func (m *Metrics) depth(queue QueueName, n int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(queue)).Set(float64(n))
}
