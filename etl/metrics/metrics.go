// Package metrics exposes the pipeline counters on the default Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "invoice_etl"

var (
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_processed_total",
		Help:      "Invoice batches processed, by outcome.",
	}, []string{"outcome"})

	InvoicesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoices_submitted_total",
		Help:      "Invoices submitted to Factus, by final status.",
	}, []string{"status"})

	SubmissionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submission_attempts_total",
		Help:      "Individual create-invoice calls, retries included.",
	})

	EventsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_failed_total",
		Help:      "Invoice events that could not be published.",
	})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_total",
		Help:      "Messages forwarded to the dead-letter topic, by error type.",
	}, []string{"error_type"})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one batch.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailed  = "failed"
)
