// Package metrics declares the Prometheus collectors for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hibi"

var (
	AICalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "AI annotation operations by final outcome (ok, rate_limited, error).",
		},
		[]string{"operation", "outcome"},
	)

	AIAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_attempts_total",
			Help:      "Backend requests issued, retries included.",
		},
		[]string{"operation"},
	)

	Rollups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_total",
			Help:      "Rollup runs by terminal state and reason.",
		},
		[]string{"state", "reason"},
	)

	LinkFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_fetches_total",
			Help:      "Link preview and thumbnail fetches by kind and result.",
		},
		[]string{"kind", "result"},
	)

	MemoAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memo_appends_total",
			Help:      "Memo blocks appended to daily notes.",
		},
	)

	Selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Topic selection interactions by action and result.",
		},
		[]string{"action", "result"},
	)
)
