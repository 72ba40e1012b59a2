// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mock_test

import (
	"context"
	"reflect"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/core/invocation"
	"github.com/juju/shadow/internal/callsite"
	"github.com/juju/shadow/internal/dispatch"
	"github.com/juju/shadow/internal/mock"
)

type mockSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&mockSuite{})

type payments struct{}

func (*payments) Charge(amount int) (string, error) { return "charged", nil }
func (*payments) Refund(id string) error            { return nil }

const paymentsType = "*github.com/juju/shadow/internal/mock_test.payments"

func (s *mockSuite) newStore(c *gc.C) *mock.Store {
	store, err := mock.NewStore(
		mock.Mock{Target: paymentsType, Method: "Charge", Return: "mocked-receipt"},
		mock.Mock{Target: paymentsType, Method: "Refund", Err: errors.New("refunds disabled")},
	)
	c.Assert(err, jc.ErrorIsNil)
	return store
}

func adviceFor(clusterTest bool, method string) *advice.Advice {
	adv := advice.New(&payments{}, method)
	adv.SetInvocation(invocation.New("trace", invocation.WithClusterTest(clusterTest)))
	return adv
}

func (s *mockSuite) TestStore(c *gc.C) {
	store := s.newStore(c)
	c.Check(store.Keys(), jc.DeepEquals, []string{paymentsType + "#Charge", paymentsType + "#Refund"})

	err := store.Replace([]mock.Mock{{Target: "a", Method: "b"}, {Target: "a", Method: "b"}})
	c.Check(err, gc.ErrorMatches, `duplicate mock "a#b" not valid`)
	c.Check(store.Keys(), gc.HasLen, 2)

	_, err = mock.NewStore(mock.Mock{Target: "a"})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *mockSuite) TestReplaceSwapsLookups(c *gc.C) {
	store := s.newStore(c)
	charge := paymentsType + "#Charge"
	_, ok := store.Lookup(charge)
	c.Check(ok, jc.IsTrue)

	err := store.Replace([]mock.Mock{{Target: paymentsType, Method: "Refund", Return: 7}})
	c.Assert(err, jc.ErrorIsNil)
	_, ok = store.Lookup(charge)
	c.Check(ok, jc.IsFalse)
	m, ok := store.Lookup(paymentsType + "#Refund")
	c.Check(ok, jc.IsTrue)
	c.Check(m.Return, gc.Equals, 7)
	c.Check(store.Keys(), jc.DeepEquals, []string{paymentsType + "#Refund"})

	c.Assert(store.Replace(nil), jc.ErrorIsNil)
	c.Check(store.Keys(), gc.HasLen, 0)
	_, ok = store.Lookup(paymentsType + "#Refund")
	c.Check(ok, jc.IsFalse)
}

func (s *mockSuite) TestBusinessTrafficContinues(c *gc.C) {
	i := mock.NewInterceptor(s.newStore(c))
	adv := adviceFor(false, "Charge")
	signal, err := i.BeforeLast(context.Background(), adv)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(signal.Kind(), gc.Equals, advice.SignalContinue)
	c.Check(adv.HasMark(mock.Marker), jc.IsFalse)
}

func (s *mockSuite) TestClusterTestReturns(c *gc.C) {
	i := mock.NewInterceptor(s.newStore(c))
	adv := adviceFor(true, "Charge")
	signal, err := i.BeforeLast(context.Background(), adv)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(signal.Kind(), gc.Equals, advice.SignalReturnImmediately)
	c.Check(signal.Value(), gc.Equals, "mocked-receipt")
	c.Check(adv.HasMark(mock.Marker), jc.IsTrue)
}

func (s *mockSuite) TestClusterTestThrows(c *gc.C) {
	i := mock.NewInterceptor(s.newStore(c))
	signal, err := i.BeforeLast(context.Background(), adviceFor(true, "Refund"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(signal.Kind(), gc.Equals, advice.SignalThrowImmediately)
	c.Check(signal.Err(), gc.ErrorMatches, "refunds disabled")
}

func (s *mockSuite) TestUnmockedMethodContinues(c *gc.C) {
	i := mock.NewInterceptor(s.newStore(c))
	signal, err := i.BeforeLast(context.Background(), adviceFor(true, "Capture"))
	c.Assert(err, jc.ErrorIsNil)
	c.Check(signal.Kind(), gc.Equals, advice.SignalContinue)
}

func (s *mockSuite) TestDispatchedCallIsNeverRun(c *gc.C) {
	d, err := dispatch.NewDispatcher(dispatch.Config{
		Structures: structures{},
		Logger:     loggo.GetLogger("test"),
		Metrics:    dispatch.NewMetricsCollector(),
	})
	c.Assert(err, jc.ErrorIsNil)
	binding := dispatch.Binding{Scope: "payments", Interceptor: mock.NewInterceptor(s.newStore(c))}

	result, err := d.Invoke(context.Background(), binding, adviceFor(true, "Charge"), func(context.Context) (any, error) {
		c.Fatalf("mocked call must not run")
		return nil, nil
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result, gc.Equals, "mocked-receipt")
}

type structures struct{}

func (structures) Structure(t reflect.Type, _ string) (*callsite.Structure, error) {
	return callsite.Describe(t)
}
