// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package consumer_test

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/internal/consumer"
)

var joinPoint = consumer.JoinPoint("kafka.Consumer", "Subscribe")

func extract(rec *consumer.SyncObjectRecord) ([]consumer.ConsumerConfig, error) {
	v, ok := rec.Target()
	if !ok {
		return nil, nil
	}
	bc, ok := v.(*businessConsumer)
	if !ok {
		return nil, errors.NotValidf("consumer %T", v)
	}
	return []consumer.ConsumerConfig{bc.config}, nil
}

type fakeShadow struct {
	mu      sync.Mutex
	config  consumer.ConsumerConfig
	running bool
	stops   int
}

func (f *fakeShadow) ShadowTarget() any { return f.config }

func (f *fakeShadow) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	return nil
}

func (f *fakeShadow) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeShadow) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
	return nil
}

type registerSuite struct {
	testing.IsolationSuite

	store  *consumer.SyncObjectStore
	built  []*fakeShadow
	failOn string
}

var _ = gc.Suite(&registerSuite{})

func (s *registerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.store = consumer.NewSyncObjectStore()
	s.built = nil
	s.failOn = ""
}

func (s *registerSuite) newRegister(c *gc.C) *consumer.Register {
	r, err := consumer.NewRegister(consumer.RegisterConfig{
		Store:     s.store,
		JoinPoint: joinPoint,
		Extract:   extract,
		Build: func(_ context.Context, cfg consumer.ConsumerConfig) (consumer.ConsumerExecute, error) {
			if cfg.Topic == s.failOn {
				return nil, errors.New("broker unreachable")
			}
			f := &fakeShadow{config: cfg}
			s.built = append(s.built, f)
			return f, nil
		},
		Naming: consumer.DefaultNaming,
		Logger: loggo.GetLogger("test"),
	})
	c.Assert(err, jc.ErrorIsNil)
	return r
}

func (s *registerSuite) addBusiness(topic, group string) *businessConsumer {
	bc := &businessConsumer{config: consumer.ConsumerConfig{
		Topic:             topic,
		Group:             group,
		Bootstrap:         []string{"broker-1:9092", "broker-2:9092"},
		KeyDeserializer:   "string",
		ValueDeserializer: "json",
		ClientID:          "orders-client",
		Auth:              map[string]string{"sasl.mechanism": "PLAIN"},
	}}
	s.store.Add(joinPoint, consumer.NewRecord(bc, "Subscribe", []any{topic}, nil))
	return bc
}

func (s *registerSuite) TestValidate(c *gc.C) {
	_, err := consumer.NewRegister(consumer.RegisterConfig{Store: s.store})
	c.Check(err, gc.ErrorMatches, "empty JoinPoint not valid")
}

func (s *registerSuite) TestStartClonesConfiguration(c *gc.C) {
	bc := s.addBusiness("orders", "billing")
	r := s.newRegister(c)

	results := r.StartShadowConsumers(context.Background())
	c.Check(results, jc.DeepEquals, map[string]error{"orders#billing": nil})
	c.Assert(s.built, gc.HasLen, 1)

	cfg := s.built[0].config
	c.Check(cfg.Topic, gc.Equals, "PT_orders")
	c.Check(cfg.Group, gc.Equals, "PT_billing")
	c.Check(cfg.ClientID, gc.Equals, "PT_orders-client")
	c.Check(cfg.Bootstrap, jc.DeepEquals, bc.config.Bootstrap)
	c.Check(cfg.ValueDeserializer, gc.Equals, "json")
	c.Check(cfg.Auth, jc.DeepEquals, map[string]string{"sasl.mechanism": "PLAIN"})

	// The shadow owns its own copy.
	cfg.Auth["sasl.mechanism"] = "SCRAM"
	c.Check(bc.config.Auth["sasl.mechanism"], gc.Equals, "PLAIN")

	c.Check(r.Running(), jc.DeepEquals, []string{"orders#billing"})
}

func (s *registerSuite) TestAtMostOneShadowPerTopicGroup(c *gc.C) {
	s.addBusiness("orders", "billing")
	s.addBusiness("orders", "billing")
	s.addBusiness("orders", "audit")
	r := s.newRegister(c)

	r.StartShadowConsumers(context.Background())
	r.StartShadowConsumers(context.Background())
	c.Check(s.built, gc.HasLen, 2)
	c.Check(r.Running(), jc.DeepEquals, []string{"orders#audit", "orders#billing"})
}

func (s *registerSuite) TestStartSelectedKeys(c *gc.C) {
	s.addBusiness("orders", "billing")
	s.addBusiness("orders", "audit")
	r := s.newRegister(c)
	c.Check(r.Live(), jc.DeepEquals, []string{"orders#audit", "orders#billing"})

	results := r.StartShadowConsumersFor(context.Background(), []string{"orders#billing", "refunds#billing"})
	c.Assert(results, gc.HasLen, 2)
	c.Check(results["orders#billing"], jc.ErrorIsNil)
	c.Check(results["refunds#billing"], jc.ErrorIs, consumer.ErrBusinessConsumerMissing)
	c.Check(r.Running(), jc.DeepEquals, []string{"orders#billing"})
}

func (s *registerSuite) TestStoppedShadowIsReplaced(c *gc.C) {
	s.addBusiness("orders", "billing")
	r := s.newRegister(c)
	r.StartShadowConsumers(context.Background())

	execute, ok := r.Shadow("orders#billing")
	c.Assert(ok, jc.IsTrue)
	c.Assert(execute.Stop(context.Background()), jc.ErrorIsNil)
	c.Check(r.Running(), gc.HasLen, 0)

	r.StartShadowConsumers(context.Background())
	c.Check(s.built, gc.HasLen, 2)
	c.Check(r.Running(), jc.DeepEquals, []string{"orders#billing"})
}

func (s *registerSuite) TestFailuresAreReportedPerKey(c *gc.C) {
	s.addBusiness("orders", "billing")
	s.addBusiness("payments", "billing")
	s.failOn = "PT_payments"
	r := s.newRegister(c)

	results := r.StartShadowConsumers(context.Background())
	c.Check(results["orders#billing"], jc.ErrorIsNil)
	c.Check(results["payments#billing"], gc.ErrorMatches, `building shadow consumer "PT_payments#PT_billing": broker unreachable`)
	c.Check(r.Running(), jc.DeepEquals, []string{"orders#billing"})
}

func (s *registerSuite) TestInvalidBusinessConfig(c *gc.C) {
	s.store.Add(joinPoint, consumer.NewRecord(&businessConsumer{config: consumer.ConsumerConfig{
		Topic: "orders",
		Group: "billing",
	}}, "Subscribe", nil, nil))
	r := s.newRegister(c)

	results := r.StartShadowConsumers(context.Background())
	c.Check(results["orders#billing"], jc.ErrorIs, errors.NotValid)
}

func (s *registerSuite) TestStopAndStopAll(c *gc.C) {
	s.addBusiness("orders", "billing")
	s.addBusiness("orders", "audit")
	r := s.newRegister(c)
	r.StartShadowConsumers(context.Background())

	c.Assert(r.Stop(context.Background(), "orders#audit"), jc.ErrorIsNil)
	c.Check(r.Running(), jc.DeepEquals, []string{"orders#billing"})
	c.Check(r.Stop(context.Background(), "orders#audit"), jc.ErrorIs, consumer.ErrNotRunning)

	c.Assert(r.StopAll(context.Background()), jc.ErrorIsNil)
	c.Check(r.Running(), gc.HasLen, 0)
	for _, f := range s.built {
		c.Check(f.stops, gc.Equals, 1)
	}
}

func (s *registerSuite) TestNaming(c *gc.C) {
	naming := consumer.PrefixNaming{Prefix: "PT_"}
	c.Check(naming.ShadowTopic("orders"), gc.Equals, "PT_orders")
	c.Check(naming.ShadowTopic("PT_orders"), gc.Equals, "PT_orders")
	c.Check(naming.ShadowGroup("billing"), gc.Equals, "PT_billing")

	topic, group, err := consumer.SplitKey("orders#billing")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(topic, gc.Equals, "orders")
	c.Check(group, gc.Equals, "billing")

	_, _, err = consumer.SplitKey("orders")
	c.Check(err, jc.ErrorIs, errors.NotValid)
}
