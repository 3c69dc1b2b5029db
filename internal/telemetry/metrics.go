/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry provides Prometheus metrics and OpenTelemetry
// tracing for the agent.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests served by the agent.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_api_requests_total",
		Help: "HTTP requests served, by method, endpoint and status.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP handler latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "huginn_api_request_duration_seconds",
		Help:    "HTTP handler latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	// SurfaceConnections gauges currently attached websocket surfaces.
	SurfaceConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_surface_connections",
		Help: "Connected websocket surfaces.",
	})

	// StatusPollsTotal counts status polls by result.
	StatusPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_status_polls_total",
		Help: "Status polls against the bot API, by result.",
	}, []string{"result"})

	// DriftCorrectionsTotal counts forced seeks issued by the synchronizer.
	DriftCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_drift_corrections_total",
		Help: "Forced seeks issued when local playback drifted past tolerance.",
	})

	// PlayStartAttemptsTotal counts playback start attempts by outcome.
	PlayStartAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_play_start_attempts_total",
		Help: "Playback start attempts, by outcome.",
	}, []string{"result"})

	// GraphRebuildsTotal counts audio graph teardown/rebuild cycles.
	GraphRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "huginn_graph_rebuilds_total",
		Help: "Audio element teardown/rebuild cycles on song identity change.",
	})

	// FramesBroadcastTotal counts visualizer frames fanned out, by kind.
	FramesBroadcastTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_frames_broadcast_total",
		Help: "Visualizer frames fanned out to surfaces, by kind.",
	}, []string{"kind"})

	// SeekRequestsTotal counts seek mutations, by origin and result.
	SeekRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_seek_requests_total",
		Help: "Seek mutations issued to the bot, by source and result.",
	}, []string{"source", "result"})

	// DatabaseQueryDuration observes GORM operation latency.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "huginn_db_query_duration_seconds",
		Help:    "Database operation latency, by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huginn_db_errors_total",
		Help: "Failed database operations, by operation and error type.",
	}, []string{"operation", "type"})

	// DatabaseConnectionsActive gauges open connections in the pool.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huginn_db_connections_active",
		Help: "Open database connections.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
