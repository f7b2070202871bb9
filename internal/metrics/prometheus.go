/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes planner measurements to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

const defaultNamespace = "daemon_planner"

// PrometheusCollector implements planner.Metrics and the adapters' request
// observer backed by Prometheus.
type PrometheusCollector struct {
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

var _ planner.Metrics = (*PrometheusCollector)(nil)

// NewPrometheus creates and registers the collector. reg defaults to
// prometheus.DefaultRegisterer and namespace to "daemon_planner".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	p := &PrometheusCollector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Planner runs by mode, dry-run flag and result.",
		}, []string{"mode", "dry_run", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of planner runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"mode"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Per-task planning outcomes.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Run-scoped cache lookups by cache and result (hit, miss).",
		}, []string{"cache", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "requests_total",
			Help:      "Requests to external services by service, operation and result.",
		}, []string{"service", "op", "result"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "request_duration_seconds",
			Help:      "Latency of requests to external services in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"service", "op"}),
	}

	reg.MustRegister(p.runs, p.runDuration, p.outcomes, p.cacheLookups, p.requests, p.requestLatency)
	return p
}

// ObserveRun records a finished run.
func (p *PrometheusCollector) ObserveRun(mode planner.Mode, dryRun bool, duration time.Duration, err error) {
	p.runs.WithLabelValues(string(mode), strconv.FormatBool(dryRun), result(err)).Inc()
	p.runDuration.WithLabelValues(string(mode)).Observe(duration.Seconds())
}

// IncOutcome counts a task outcome.
func (p *PrometheusCollector) IncOutcome(outcome planner.Outcome) {
	p.outcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveCacheLookup counts a cache lookup.
func (p *PrometheusCollector) ObserveCacheLookup(cache string, hit bool) {
	r := "miss"
	if hit {
		r = "hit"
	}
	p.cacheLookups.WithLabelValues(cache, r).Inc()
}

// ObserveRequest records one call to an external service.
func (p *PrometheusCollector) ObserveRequest(service, op string, duration time.Duration, err error) {
	p.requests.WithLabelValues(service, op, result(err)).Inc()
	p.requestLatency.WithLabelValues(service, op).Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
