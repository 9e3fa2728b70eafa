// Package metrics exposes the scheduler's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "evalzoo"

// Metrics holds the scheduler collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	inFlight    prometheus.Gauge
	clusterJobs prometheus.Gauge
	queued      prometheus.Gauge
	lastQueued  prometheus.Gauge
	submissions *prometheus.CounterVec
	deleted     prometheus.Counter
	dropped     prometheus.Counter
}

// New creates the collectors and registers them, together with the process
// and Go runtime collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_tasks",
			Help:      "Task completions requested by jobs currently on the cluster.",
		}),
		clusterJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_jobs",
			Help:      "Jobs currently on the cluster.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_pairs",
			Help:      "Pairs waiting to be submitted.",
		}),
		lastQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_version_queued",
			Help:      "Highest model version whose pairs have been queued.",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Match submission attempts by outcome.",
		}, []string{"outcome"}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_deleted_total",
			Help:      "Finished jobs removed from the cluster.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_dropped_total",
			Help:      "Pairs dropped after repeated name conflicts.",
		}),
	}
	m.Registry.MustRegister(
		m.inFlight, m.clusterJobs, m.queued, m.lastQueued,
		m.submissions, m.deleted, m.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordCluster records the latest job listing summary.
func (m *Metrics) RecordCluster(jobs, inFlight int) {
	m.clusterJobs.Set(float64(jobs))
	m.inFlight.Set(float64(inFlight))
}

// RecordState records the queue length and discovery watermark.
func (m *Metrics) RecordState(queued, lastQueued int) {
	m.queued.Set(float64(queued))
	m.lastQueued.Set(float64(lastQueued))
}

// RecordSubmission counts one submission attempt.
func (m *Metrics) RecordSubmission(outcome string) {
	m.submissions.WithLabelValues(outcome).Inc()
}

// RecordDeleted counts finished jobs removed by cleanup.
func (m *Metrics) RecordDeleted(n int) {
	m.deleted.Add(float64(n))
}

// RecordDropped counts a pair abandoned after too many conflicts.
func (m *Metrics) RecordDropped() {
	m.dropped.Inc()
}
