// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shadowagent

import (
	"context"
	"net"
	"os"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/dependency"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/shadow/internal/config"
	"github.com/juju/shadow/internal/shadow"
	"github.com/juju/shadow/internal/tracing"
)

// ManifoldConfig defines the configuration for the agent manifold.
type ManifoldConfig struct {
	// ConfigPath is the agent configuration file. It is read when the
	// worker starts and watched while it runs.
	ConfigPath string
	Version    string

	Clock                clock.Clock
	Logger               Logger
	PrometheusRegisterer prometheus.Registerer

	Families         []shadow.Family
	ConsumerFamilies []ConsumerFamily

	IP net.IP

	ReadConfig       func(path string) (config.Config, error)
	NewTracingClient tracing.NewClientFunc
	NewWorker        func(Config) (worker.Worker, error)
}

// Validate validates the manifold configuration.
func (cfg ManifoldConfig) Validate() error {
	if cfg.ConfigPath == "" {
		return errors.NotValidf("empty ConfigPath")
	}
	if cfg.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if cfg.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if cfg.ReadConfig == nil {
		return errors.NotValidf("nil ReadConfig")
	}
	if cfg.NewTracingClient == nil {
		return errors.NotValidf("nil NewTracingClient")
	}
	if cfg.NewWorker == nil {
		return errors.NotValidf("nil NewWorker")
	}
	return nil
}

// Manifold returns a dependency manifold that runs the agent worker.
// Dependents receive the *Agent through the manifold's output.
func Manifold(config ManifoldConfig) dependency.Manifold {
	return dependency.Manifold{
		Start: func(ctx context.Context, getter dependency.Getter) (worker.Worker, error) {
			if err := config.Validate(); err != nil {
				return nil, errors.Trace(err)
			}

			agentConfig, err := config.ReadConfig(config.ConfigPath)
			if err != nil {
				return nil, errors.Trace(err)
			}

			w, err := config.NewWorker(Config{
				Agent:            agentConfig,
				ConfigPath:       config.ConfigPath,
				Version:          config.Version,
				Clock:            config.Clock,
				Logger:           config.Logger,
				Registerer:       config.PrometheusRegisterer,
				Families:         config.Families,
				ConsumerFamilies: config.ConsumerFamilies,
				NewTracingClient: config.NewTracingClient,
				IP:               config.IP,
				PID:              os.Getpid(),
			})
			if err != nil {
				return nil, errors.Trace(err)
			}
			return w, nil
		},
		Output: output,
	}
}

func output(in worker.Worker, out any) error {
	agent, ok := in.(*Agent)
	if !ok {
		return errors.Errorf("expected *Agent, got %T", in)
	}
	switch out := out.(type) {
	case **Agent:
		*out = agent
	default:
		return errors.Errorf("expected **Agent, got %T", out)
	}
	return nil
}

// NewAgentWorker starts an Agent for ManifoldConfig.NewWorker.
func NewAgentWorker(cfg Config) (worker.Worker, error) {
	w, err := NewWorker(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}
