// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability exposes prometheus metrics for the query pipeline
// and the HTTP front.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. One instance per process.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal    *prometheus.CounterVec
	RefusalsTotal   *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	RerankFallbacks prometheus.Counter
	HTTPRequests    *prometheus.HistogramVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexrag_queries_total",
			Help: "Queries by outcome (answered, refused, error).",
		}, []string{"outcome"}),
		RefusalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexrag_refusals_total",
			Help: "Refusals by reason.",
		}, []string{"reason"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexrag_stage_duration_seconds",
			Help:    "Pipeline stage latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		RerankFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexrag_rerank_fallbacks_total",
			Help: "Requests where rerank scores were discarded for rrf scores.",
		}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lexrag_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	registry.MustRegister(
		m.QueriesTotal,
		m.RefusalsTotal,
		m.StageDuration,
		m.RerankFallbacks,
		m.HTTPRequests,
	)
	return m
}

// ObserveStage records one pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RegisterAuditDrops exposes the sink's debug-drop counter as a gauge.
func (m *Metrics) RegisterAuditDrops(drops func() int64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lexrag_audit_debug_drops",
		Help: "Debug audit records dropped due to queue pressure.",
	}, func() float64 {
		return float64(drops())
	}))
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
