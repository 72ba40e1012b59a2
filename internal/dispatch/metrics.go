// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shadow_dispatch"

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeTimeout   = "timeout"
	OutcomeReturned  = "returned"
	OutcomeThrown    = "thrown"
	OutcomeNested    = "nested"
	OutcomeUnmatched = "unmatched"
	OutcomeRejected  = "rejected"
)

// Collector is a prometheus.Collector that collects metrics about
// dispatched calls.
type Collector struct {
	invocations *prometheus.CounterVec
	faults      *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invocations_total",
				Help:      "The number of dispatched calls by scope and outcome.",
			}, []string{"scope", "outcome"},
		),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "interceptor_faults_total",
				Help:      "The number of interceptor errors and panics by scope and phase.",
			}, []string{"scope", "phase"},
		),
	}
}

// Invocations returns the counter for scope and outcome.
func (c *Collector) Invocations(scope, outcome string) prometheus.Counter {
	return c.invocations.WithLabelValues(scope, outcome)
}

// Faults returns the counter for scope and phase.
func (c *Collector) Faults(scope string, phase Phase) prometheus.Counter {
	return c.faults.WithLabelValues(scope, phase.String())
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.invocations.Describe(ch)
	c.faults.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.invocations.Collect(ch)
	c.faults.Collect(ch)
}
