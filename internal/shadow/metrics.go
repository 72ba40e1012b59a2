// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shadow

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shadow_registry"

// Route outcome labels.
const (
	OutcomePassed        = "passed"
	OutcomeCutoff        = "cutoff"
	OutcomeNotConfigured = "not-configured"
	OutcomeUnsupported   = "unsupported"
	OutcomeError         = "error"
)

// Collector is a prometheus.Collector that collects metrics about
// shadow resources.
type Collector struct {
	creations *prometheus.CounterVec
	routes    *prometheus.CounterVec
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		creations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "creations_total",
				Help:      "The number of shadow resources created by family.",
			}, []string{"family"},
		),
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "routes_total",
				Help:      "The number of cluster-test routing decisions by family and outcome.",
			}, []string{"family", "outcome"},
		),
	}
}

// Creations returns the creation counter for family.
func (c *Collector) Creations(family string) prometheus.Counter {
	return c.creations.WithLabelValues(family)
}

// Routes returns the routing counter for family and outcome.
func (c *Collector) Routes(family, outcome string) prometheus.Counter {
	return c.routes.WithLabelValues(family, outcome)
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.creations.Describe(ch)
	c.routes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.creations.Collect(ch)
	c.routes.Collect(ch)
}
