// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PanelScansStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_scans_started_total",
			Help: "Total number of scans triggered by the panel",
		},
	)

	PanelInjectionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_injection_failures_total",
			Help: "Total number of failed content script injection commands",
		},
	)

	LinkAnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_link_analyses_total",
			Help: "Total number of per-link analyses by outcome status",
		},
		[]string{"status"},
	)

	LinkAnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "panel_link_analysis_duration_seconds",
			Help: "Duration of single-link analysis calls in seconds",
		},
		[]string{"status"},
	)

	ProtocolViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_protocol_violations_total",
			Help: "Total number of malformed payloads rejected at a channel boundary",
		},
		[]string{"channel"},
	)

	StaleBatchesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_stale_batches_discarded_total",
			Help: "Total number of completed batches dropped because a newer scan superseded them",
		},
	)

	ScansActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panel_scans_active",
			Help: "Number of scans currently between injection and a settled result",
		},
	)
)
