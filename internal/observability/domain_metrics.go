package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textsql_completions_total",
			Help: "Total number of model completion calls by mode and outcome.",
		},
		[]string{"mode", "status"},
	)
	completionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "textsql_completion_duration_seconds",
			Help:    "Model completion latency by mode.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"mode"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textsql_query_executions_total",
			Help: "Total number of generated SQL executions by outcome.",
		},
		[]string{"status"},
	)
	queryExecutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "textsql_query_execution_duration_seconds",
			Help:    "Generated SQL execution latency against the active store.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)
	historyWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "textsql_history_write_failures_total",
			Help: "Total number of query history records that could not be written.",
		},
	)
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "textsql_uploads_total",
			Help: "Total number of dataset uploads by kind and outcome.",
		},
		[]string{"kind", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		completionsTotal,
		completionDurationSeconds,
		queryExecutionsTotal,
		queryExecutionDurationSeconds,
		historyWriteFailuresTotal,
		uploadsTotal,
	)
}

func ObserveCompletion(mode string, err error, elapsed time.Duration) {
	completionsTotal.WithLabelValues(mode, outcomeLabel(err)).Inc()
	completionDurationSeconds.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// ObserveQueryExecution records one executor call. failed covers both store
// errors and statement errors captured as data.
func ObserveQueryExecution(failed bool, elapsed time.Duration) {
	status := "ok"
	if failed {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryExecutionDurationSeconds.Observe(elapsed.Seconds())
}

func IncrementHistoryWriteFailure() {
	historyWriteFailuresTotal.Inc()
}

func ObserveUpload(kind string, err error) {
	uploadsTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
