// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability provides the Prometheus metrics and OpenTelemetry
// tracing used by a test run.
//
// A run is a short lived batch job, so metrics are not served; they are
// written once to a textfile that a node exporter textfile collector can
// pick up.
package observability

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the Prometheus metrics of one run. A nil *Collector is
// valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Requests         *prometheus.CounterVec
	RequestDurations *prometheus.HistogramVec
	Polls            *prometheus.CounterVec
	PollAttempts     *prometheus.HistogramVec
	Stages           *prometheus.CounterVec
	StageDurations   *prometheus.HistogramVec
}

// NewCollector registers the run metrics against reg. A fresh registry is
// used when reg is nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ixnet_rest_requests_total",
			Help: "REST requests sent to the IxNetwork API server, labeled by method, resource and status code.",
		}, []string{"method", "resource", "code"}),
		RequestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ixnet_rest_request_duration_seconds",
			Help:    "REST request latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "resource"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ixnet_polls_total",
			Help: "State convergence polls, labeled by condition and outcome.",
		}, []string{"condition", "outcome"}),
		PollAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ixnet_poll_attempts",
			Help:    "Number of attempts a state convergence poll needed.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}, []string{"condition"}),
		Stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bgpngpf_stages_total",
			Help: "Orchestration stages run, labeled by stage and result.",
		}, []string{"stage", "result"}),
		StageDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bgpngpf_stage_duration_seconds",
			Help:    "Orchestration stage duration in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
	}
	for _, col := range []prometheus.Collector{c.Requests, c.RequestDurations, c.Polls, c.PollAttempts, c.Stages, c.StageDurations} {
		if err := reg.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return c, nil
}

// ObserveRequest records one REST round trip. code is 0 when no response
// was received.
func (c *Collector) ObserveRequest(method, href string, code int, d time.Duration) {
	if c == nil {
		return
	}
	res := Resource(href)
	c.Requests.WithLabelValues(method, res, strconv.Itoa(code)).Inc()
	c.RequestDurations.WithLabelValues(method, res).Observe(d.Seconds())
}

// ObservePoll records the outcome of one convergence poll.
func (c *Collector) ObservePoll(condition string, attempts int, err error) {
	if c == nil {
		return
	}
	outcome := "converged"
	if err != nil {
		outcome = "failed"
	}
	c.Polls.WithLabelValues(condition, outcome).Inc()
	c.PollAttempts.WithLabelValues(condition).Observe(float64(attempts))
}

// ObserveStage records one orchestration stage.
func (c *Collector) ObserveStage(stage string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Stages.WithLabelValues(stage, result).Inc()
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes the current metric values to filename in the text
// exposition format.
func (c *Collector) WriteTextfile(filename string) error {
	if c == nil || filename == "" {
		return nil
	}
	return prometheus.WriteToTextfile(filename, c.gatherer)
}

// Resource reduces an href to a label with bounded cardinality by replacing
// numeric path elements, e.g. "/api/v1/sessions/3/ixnetwork/topology/1"
// becomes "/api/v1/sessions/:id/ixnetwork/topology/:id". Query strings are
// dropped.
func Resource(href string) string {
	if i := strings.IndexByte(href, '?'); i >= 0 {
		href = href[:i]
	}
	parts := strings.Split(href, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.Atoi(p); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
