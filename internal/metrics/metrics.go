package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_jobs_submitted_total",
		Help: "Total number of jobs submitted",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_jobs_completed_total",
		Help: "Total number of jobs that finished successfully",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_jobs_failed_total",
		Help: "Total number of jobs that failed",
	})

	JobsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_jobs_cancelled_total",
		Help: "Total number of jobs cancelled by the client",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytdl_orchestrator_active_jobs",
		Help: "Number of jobs currently holding a live subprocess",
	})

	QueuedJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytdl_orchestrator_queued_jobs",
		Help: "Number of jobs waiting for a free slot",
	})

	ProgressEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_progress_events_total",
		Help: "Total number of structured progress events parsed",
	})

	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytdl_orchestrator_downloaded_bytes_total",
		Help: "Total bytes reported downloaded across all jobs",
	})
)
