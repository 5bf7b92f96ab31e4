// Copyright (c) 2026 courtcast
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of live camera sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtcast_sessions_active",
		Help: "Number of live camera sessions",
	})

	// AllocatedPorts tracks the number of relay ports currently held.
	AllocatedPorts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtcast_proxy_ports_allocated",
		Help: "Number of relay ports currently allocated",
	})

	// ProxyStartTotal tracks relay start attempts by result.
	ProxyStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtcast_proxy_start_total",
		Help: "Total relay start attempts by result",
	}, []string{"result"})

	// ProxyReadyDuration observes the time from relay launch to video-ready.
	ProxyReadyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "courtcast_proxy_ready_duration_seconds",
		Help:    "Time from relay launch until live video was observed",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 15},
	})

	// RecordingsTotal tracks recording outcomes.
	RecordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtcast_recordings_total",
		Help: "Total recordings by outcome (started, completed, failed, rejected)",
	}, []string{"outcome"})

	// ActiveRecordings tracks currently running encoder tasks.
	ActiveRecordings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtcast_recordings_active",
		Help: "Number of encoder tasks currently running",
	})

	// FinalizeStretchTotal counts clock-drift stretch corrections.
	FinalizeStretchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courtcast_finalize_stretch_total",
		Help: "Total recordings that required stretch correction",
	})

	// ProcTerminateTotal tracks subprocess termination signals by outcome.
	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtcast_proc_terminate_total",
		Help: "Subprocess termination signals by signal and outcome",
	}, []string{"signal", "outcome"})

	// PreviewViewers tracks attached preview viewers per session.
	PreviewViewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "courtcast_preview_viewers",
		Help: "Preview viewers currently attached, per session",
	}, []string{"session_id"})
)

// IncProxyStart records a relay start attempt result ("ok", "timeout", "spawn_error", "no_port").
func IncProxyStart(result string) {
	ProxyStartTotal.WithLabelValues(result).Inc()
}

// IncRecording records a recording lifecycle outcome.
func IncRecording(outcome string) {
	RecordingsTotal.WithLabelValues(outcome).Inc()
}

// IncProcTerminate records a termination signal delivery outcome.
func IncProcTerminate(signal, outcome string) {
	ProcTerminateTotal.WithLabelValues(signal, outcome).Inc()
}
