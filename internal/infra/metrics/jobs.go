package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsFinishedTotal, pollTicksTotal, jobDurationSeconds) }

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_finished_total",
		Help: "Total number of tracked jobs that reached a terminal state, labeled by outcome.",
	},
	[]string{"outcome"}, // 'completed', 'failed', 'timeout', 'cached'
)

var pollTicksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "analysis_poll_ticks_total",
		Help: "Total number of status fetches issued by the poll loop.",
	},
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "analysis_job_duration_seconds",
		Help:    "Submission-to-terminal duration of tracked jobs.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
	},
)

func IncJobFinished(outcome string) {
	jobsFinishedTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncPollTick() { pollTicksTotal.Inc() }

func ObserveJobDuration(seconds float64) { jobDurationSeconds.Observe(seconds) }
