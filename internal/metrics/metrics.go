// Package metrics exposes purge run counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder bundles the purge metrics. A nil *Recorder is a no-op, so the
// purge service can run without a registry in tests and one-off commands.
type Recorder struct {
	runs      prometheus.Counter
	deferrals prometheus.Counter
	failures  prometheus.Counter
	deleted   prometheus.Counter
	skipped   prometheus.Counter
}

// New registers the purge metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "threadpurge_runs_total",
			Help: "Completed purge batches.",
		}),
		deferrals: f.NewCounter(prometheus.CounterOpts{
			Name: "threadpurge_quota_deferrals_total",
			Help: "Runs skipped because the daily run limit was reached.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "threadpurge_run_failures_total",
			Help: "Purge batches that ended in an error.",
		}),
		deleted: f.NewCounter(prometheus.CounterOpts{
			Name: "threadpurge_threads_deleted_total",
			Help: "Threads moved to trash.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "threadpurge_threads_skipped_total",
			Help: "Fetched threads that failed the pre-trash re-check.",
		}),
	}
}

func (r *Recorder) Run() {
	if r != nil {
		r.runs.Inc()
	}
}

func (r *Recorder) Deferral() {
	if r != nil {
		r.deferrals.Inc()
	}
}

func (r *Recorder) Failure() {
	if r != nil {
		r.failures.Inc()
	}
}

func (r *Recorder) Deleted(n int) {
	if r != nil {
		r.deleted.Add(float64(n))
	}
}

func (r *Recorder) Skipped(n int) {
	if r != nil {
		r.skipped.Add(float64(n))
	}
}
