// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package advice_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/core/invocation"
)

type adviceSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&adviceSuite{})

func (s *adviceSuite) TestAttachment(c *gc.C) {
	adv := advice.New("conn", "Query", "select 1")
	c.Check(adv.Target(), gc.Equals, "conn")
	c.Check(adv.Method(), gc.Equals, "Query")
	c.Check(adv.Params(), jc.DeepEquals, []any{"select 1"})
	c.Check(adv.Attachment(), gc.IsNil)

	adv.Attach(42)
	c.Check(adv.Attachment(), gc.Equals, 42)
}

func (s *adviceSuite) TestMarks(c *gc.C) {
	adv := advice.New(nil, "Get")
	c.Check(adv.HasMark("blacklisted"), jc.IsFalse)
	adv.Mark("blacklisted")
	c.Check(adv.HasMark("blacklisted"), jc.IsTrue)
	c.Check(adv.HasMark("other"), jc.IsFalse)
}

func (s *adviceSuite) TestClusterTest(c *gc.C) {
	adv := advice.New(nil, "Get")
	c.Check(adv.IsClusterTest(), jc.IsFalse)

	adv.SetInvocation(invocation.New("trace-1", invocation.WithClusterTest(true)))
	c.Check(adv.IsClusterTest(), jc.IsTrue)
}

func (s *adviceSuite) TestSignals(c *gc.C) {
	var zero advice.ControlSignal
	c.Check(zero.Kind(), gc.Equals, advice.SignalContinue)

	ret := advice.ReturnImmediately("canned")
	c.Check(ret.Kind(), gc.Equals, advice.SignalReturnImmediately)
	c.Check(ret.Value(), gc.Equals, "canned")

	boom := errors.New("boom")
	thr := advice.ThrowImmediately(boom)
	c.Check(thr.Kind(), gc.Equals, advice.SignalThrowImmediately)
	c.Check(thr.Err(), gc.Equals, boom)
	c.Check(thr.String(), gc.Equals, "throw-immediately")
}

func (s *adviceSuite) TestCutOffResult(c *gc.C) {
	passed := advice.Passed()
	c.Check(passed.IsCutoff(), jc.IsFalse)
	c.Check(passed.Signal().Kind(), gc.Equals, advice.SignalContinue)

	cut := advice.Cutoff(7)
	c.Check(cut.IsCutoff(), jc.IsTrue)
	c.Check(cut.Value(), gc.Equals, 7)
	c.Check(cut.Signal().Kind(), gc.Equals, advice.SignalReturnImmediately)
	c.Check(cut.Signal().Value(), gc.Equals, 7)
}
