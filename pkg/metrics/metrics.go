// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "evocode"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 数据生成
	ArtifactsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "artifacts_accepted_total",
			Help:      "Total number of accepted artifacts",
		},
		[]string{"stage"},
	)

	ArtifactsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "artifacts_duplicate_total",
			Help:      "Total number of duplicate artifacts discarded",
		},
		[]string{"stage"},
	)

	ArtifactsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "artifacts_retried_total",
			Help:      "Total number of regenerate retries issued",
		},
		[]string{"stage"},
	)

	ArtifactsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "artifacts_failed_total",
			Help:      "Total number of permanently failed artifacts",
		},
		[]string{"stage", "reason"}, // reason: transport/validation
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "batch_duration_seconds",
			Help:      "Generation batch duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	FlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "flush_total",
			Help:      "Total number of persister flushes",
		},
		[]string{"stage", "status"},
	)

	FlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "flush_duration_seconds",
			Help:      "Persister flush duration in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"stage"},
	)

	// LLM 指标
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"provider", "model", "status"},
	)

	// 队列指标
	RunJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_processed_total",
			Help:      "Total number of generation jobs processed",
		},
		[]string{"stage", "status"},
	)

	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "datagen",
			Name:      "active_runs",
			Help:      "Current number of in-flight generation runs",
		},
	)
)
