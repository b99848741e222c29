// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SentTotal counts successful transport handoffs.
	SentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_scheduler_sent_total",
			Help: "Total number of emails handed to the transport successfully",
		},
		[]string{"sender"},
	)

	// FailedTotal counts terminal transport failures.
	FailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_scheduler_failed_total",
			Help: "Total number of sends that failed at the transport boundary",
		},
		[]string{"sender"},
	)

	// RateLimitedTotal counts reschedules caused by an exhausted hourly window.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_scheduler_rate_limited_total",
			Help: "Total number of dispatch attempts rescheduled by the hourly rate gate",
		},
		[]string{"sender"},
	)

	// StaleDroppedTotal counts queue entries dropped because the backing job
	// was missing or already sent.
	StaleDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_scheduler_stale_dropped_total",
			Help: "Total number of queue entries dropped as missing or already sent",
		},
	)

	// SendDuration observes transport call latency.
	SendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_scheduler_send_duration_seconds",
			Help:    "Duration of transport send calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)
