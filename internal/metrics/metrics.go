// Package metrics exposes batch and sampler counters as Prometheus
// collectors registered on a caller-supplied registry.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every collector name.
const Namespace = "idsm"

// Recorder aggregates run outcomes, durations, retries, queue depth and
// per-chain acceptance rates.
type Recorder struct {
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	attempts   prometheus.Counter
	queue      prometheus.Gauge
	acceptance *prometheus.GaugeVec
}

// NewRecorder registers the collectors on reg. A nil reg leaves them
// unregistered, which suits tests that only read values back.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Completed seed-pair runs by final status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single run attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "run_attempts_total",
			Help:      "Run attempts including retries.",
		}),
		queue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Seed-pair tasks waiting for a worker.",
		}),
		acceptance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sampler_acceptance_rate",
			Help:      "Metropolis acceptance rate of the last finished chain.",
		}, []string{"chain"}),
	}
	if reg != nil {
		reg.MustRegister(r.runs, r.duration, r.attempts, r.queue, r.acceptance)
	}
	return r
}

// Attempt records one run attempt and its duration.
func (r *Recorder) Attempt(d time.Duration) {
	if r == nil {
		return
	}
	r.attempts.Inc()
	r.duration.Observe(d.Seconds())
}

// Finished records the final status of a task.
func (r *Recorder) Finished(status string) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
}

// QueueDepth sets the number of waiting tasks.
func (r *Recorder) QueueDepth(n int) {
	if r == nil {
		return
	}
	r.queue.Set(float64(n))
}

// Acceptance records the acceptance rate of a chain.
func (r *Recorder) Acceptance(chain int, rate float64) {
	if r == nil {
		return
	}
	r.acceptance.WithLabelValues(strconv.Itoa(chain)).Set(rate)
}
