package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_http_request_duration_seconds",
			Help:    "HTTP request latency by route. /v1/ask spans both model calls.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_questions_total",
			Help: "Total number of questions answered, by final status.",
		},
		[]string{"status"},
	)
	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_stage_duration_seconds",
			Help:    "Latency of each pipeline stage (schema, sql, execute, answer).",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	modelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_model_requests_total",
			Help: "Total number of language model calls, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	queryRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "askdb_query_rows_returned",
			Help:    "Rows returned by successfully executed generated queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
		},
	)
	archiveFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_archive_flushes_total",
			Help: "Total number of transcript archive flushes, by outcome.",
		},
		[]string{"outcome"},
	)
	archiveTranscriptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_archive_transcripts_total",
			Help: "Total number of transcripts written to the object store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		questionsTotal,
		stageDurationSeconds,
		modelRequestsTotal,
		queryRowsReturned,
		archiveFlushesTotal,
		archiveTranscriptsTotal,
	)
}

func ObserveQuestion(status string) {
	questionsTotal.WithLabelValues(status).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	stageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveModelRequest(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	modelRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRowsReturned.Observe(float64(rows))
}

func ObserveArchiveFlush(transcripts int, err error) {
	if err != nil {
		archiveFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	archiveFlushesTotal.WithLabelValues("ok").Inc()
	archiveTranscriptsTotal.Add(float64(transcripts))
}
