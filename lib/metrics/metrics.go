// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exports agent activity as Prometheus metrics. The
// collectors live on a registry owned by [Agent] rather than the
// global default, so tests and multiple agents in one process do not
// collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/ssh-gpg-agent/lib/version"
)

const namespace = "ssh_gpg_agent"

// Agent holds the agent's collectors. It implements the session event
// interface of package sshagent.
type Agent struct {
	registry *prometheus.Registry

	buildInfo       prometheus.Gauge
	sessionsTotal   prometheus.Counter
	sessionsActive  prometheus.Gauge
	requestsTotal   *prometheus.CounterVec
	signResults     *prometheus.CounterVec
	decryptDuration prometheus.Histogram
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Agent {
	agent := &Agent{
		registry: prometheus.NewRegistry(),
		buildInfo: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Always 1. Labelled with the running agent's version.",
			ConstLabels: prometheus.Labels{"version": version.Short()},
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Client connections accepted.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Client connections currently open.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Agent protocol requests received, by request type.",
		}, []string{"type"}),
		signResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_results_total",
			Help:      "Sign requests by outcome.",
		}, []string{"result"}), // ok|not_found|decrypt_error|sign_error
		decryptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decrypt_duration_seconds",
			Help:      "Time spent in the decryption backend, including any PIN entry or token touch.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}

	agent.buildInfo.Set(1)
	agent.registry.MustRegister(
		agent.buildInfo,
		agent.sessionsTotal,
		agent.sessionsActive,
		agent.requestsTotal,
		agent.signResults,
		agent.decryptDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return agent
}

// Handler serves the registry in the Prometheus exposition format.
func (a *Agent) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

func (a *Agent) SessionOpened() {
	a.sessionsTotal.Inc()
	a.sessionsActive.Inc()
}

func (a *Agent) SessionClosed() {
	a.sessionsActive.Dec()
}

func (a *Agent) RequestReceived(kind string) {
	a.requestsTotal.WithLabelValues(kind).Inc()
}

func (a *Agent) SignCompleted(result string) {
	a.signResults.WithLabelValues(result).Inc()
}

func (a *Agent) DecryptCompleted(duration time.Duration) {
	a.decryptDuration.Observe(duration.Seconds())
}
