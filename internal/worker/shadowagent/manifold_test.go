// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shadowagent_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4"
	dependencytesting "github.com/juju/worker/v4/dependency/testing"
	"github.com/juju/worker/v4/workertest"
	"go.opentelemetry.io/otel/trace"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/internal/config"
	"github.com/juju/shadow/internal/tracing"
	"github.com/juju/shadow/internal/worker/shadowagent"
)

type manifoldSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
}

var _ = gc.Suite(&manifoldSuite{})

func (s *manifoldSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
}

func (s *manifoldSuite) getConfig() shadowagent.ManifoldConfig {
	return shadowagent.ManifoldConfig{
		ConfigPath: "/etc/shadow/agent.yaml",
		Clock:      s.clock,
		Logger:     loggo.GetLogger("test"),
		ReadConfig: func(string) (config.Config, error) {
			cfg := config.Default()
			cfg.AppName = "orders"
			return cfg, nil
		},
		NewTracingClient: func(context.Context, tracing.ClientConfig) (tracing.Client, tracing.Provider, trace.Tracer, error) {
			return nil, nil, nil, errors.New("tracing disabled")
		},
		NewWorker: shadowagent.NewAgentWorker,
	}
}

func (s *manifoldSuite) TestValidateConfig(c *gc.C) {
	cfg := s.getConfig()
	c.Check(cfg.Validate(), jc.ErrorIsNil)

	cfg = s.getConfig()
	cfg.ConfigPath = ""
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.getConfig()
	cfg.Clock = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.getConfig()
	cfg.Logger = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.getConfig()
	cfg.ReadConfig = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.getConfig()
	cfg.NewTracingClient = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.getConfig()
	cfg.NewWorker = nil
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *manifoldSuite) TestInputs(c *gc.C) {
	c.Check(shadowagent.Manifold(s.getConfig()).Inputs, gc.HasLen, 0)
}

func (s *manifoldSuite) TestStart(c *gc.C) {
	cfg := s.getConfig()
	// The watcher needs a real file, so the worker is started without one.
	cfg.NewWorker = func(wc shadowagent.Config) (worker.Worker, error) {
		c.Check(wc.Agent.AppName, gc.Equals, "orders")
		c.Check(wc.ConfigPath, gc.Equals, "/etc/shadow/agent.yaml")
		c.Check(wc.PID > 0, jc.IsTrue)
		wc.ConfigPath = ""
		return shadowagent.NewAgentWorker(wc)
	}
	manifold := shadowagent.Manifold(cfg)

	w, err := manifold.Start(context.Background(), dependencytesting.StubGetter(map[string]any{}))
	c.Assert(err, jc.ErrorIsNil)
	defer workertest.CleanKill(c, w)

	var agent *shadowagent.Agent
	c.Assert(manifold.Output(w, &agent), jc.ErrorIsNil)
	c.Check(agent, gc.Equals, w)

	var other *string
	c.Check(manifold.Output(w, &other), gc.ErrorMatches, `expected \*\*Agent, got \*\*string`)
}

func (s *manifoldSuite) TestStartReadConfigError(c *gc.C) {
	cfg := s.getConfig()
	cfg.ReadConfig = func(string) (config.Config, error) {
		return config.Config{}, errors.NotValidf("agent config")
	}
	_, err := shadowagent.Manifold(cfg).Start(context.Background(), dependencytesting.StubGetter(map[string]any{}))
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
