// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package callsite_test

import (
	"reflect"
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/internal/callsite"
)

type cacheSuite struct {
	testing.IsolationSuite

	clock *testclock.Clock
}

var _ = gc.Suite(&cacheSuite{})

func (s *cacheSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.clock = testclock.NewClock(time.Now())
}

func (s *cacheSuite) config() callsite.Config {
	return callsite.Config{
		Clock:         s.clock,
		Logger:        loggo.GetLogger("test"),
		Quiescence:    callsite.DefaultQuiescence,
		CheckInterval: callsite.DefaultCheckInterval,
	}
}

func (s *cacheSuite) newCache(c *gc.C) *callsite.Cache {
	cache, err := callsite.NewCache(s.config())
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) { workertest.DirtyKill(c, cache) })
	return cache
}

func (s *cacheSuite) TestValidate(c *gc.C) {
	cfg := s.config()
	cfg.Clock = nil
	c.Check(cfg.Validate(), gc.ErrorMatches, "nil Clock not valid")

	cfg = s.config()
	cfg.Logger = nil
	c.Check(cfg.Validate(), gc.ErrorMatches, "nil Logger not valid")

	cfg = s.config()
	cfg.Quiescence = 0
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)

	cfg = s.config()
	cfg.CheckInterval = -time.Second
	c.Check(cfg.Validate(), jc.ErrorIs, errors.NotValid)
}

func (s *cacheSuite) TestHitAndMiss(c *gc.C) {
	cache := s.newCache(c)
	t := reflect.TypeOf(&conn{})

	first, err := cache.Structure(t, "main")
	c.Assert(err, jc.ErrorIsNil)
	second, err := cache.Structure(t, "main")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(second, gc.Equals, first)

	other, err := cache.Structure(t, "plugin")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(other, gc.Not(gc.Equals), first)

	stats := cache.Stats()
	c.Check(stats.Enabled, jc.IsTrue)
	c.Check(stats.Size, gc.Equals, 2)
	c.Check(stats.Hits, gc.Equals, uint64(1))
	c.Check(stats.Misses, gc.Equals, uint64(2))
}

func (s *cacheSuite) TestDecisionsSameWhenDisabled(c *gc.C) {
	cache := s.newCache(c)
	matcher := callsite.AllOf(callsite.MethodMatcher("Exec"), callsite.PackageMatcher("github.com/juju"))
	types := []reflect.Type{
		reflect.TypeOf(&conn{}),
		reflect.TypeOf(conn{}),
		reflect.TypeOf(""),
	}

	decide := func() []bool {
		var out []bool
		for _, t := range types {
			st, err := cache.Structure(t, "main")
			c.Assert(err, jc.ErrorIsNil)
			out = append(out, matcher.Match(st))
		}
		return out
	}

	enabled := decide()
	c.Check(enabled, jc.DeepEquals, []bool{true, false, false})

	cache.Disable()
	c.Check(cache.Enabled(), jc.IsFalse)
	c.Check(decide(), jc.DeepEquals, enabled)
	c.Check(cache.Stats().Size, gc.Equals, 0)
}

func (s *cacheSuite) TestConcurrentLookups(c *gc.C) {
	cache := s.newCache(c)
	t := reflect.TypeOf(&conn{})

	var wg sync.WaitGroup
	results := make([]*callsite.Structure, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := cache.Structure(t, "main")
			c.Check(err, jc.ErrorIsNil)
			results[i] = st
		}(i)
	}
	wg.Wait()

	for _, st := range results {
		c.Check(st.Subject, gc.Equals, results[0].Subject)
		c.Check(st.HasMethod("Exec"), jc.IsTrue)
	}
	c.Check(cache.Stats().Size, gc.Equals, 1)
}

func (s *cacheSuite) TestNilType(c *gc.C) {
	cache := s.newCache(c)
	_, err := cache.Structure(nil, "main")
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *cacheSuite) TestStaysEnabledWhileUsed(c *gc.C) {
	cache := s.newCache(c)
	t := reflect.TypeOf(&conn{})

	for i := 0; i < 10; i++ {
		_, err := cache.Structure(t, "main")
		c.Assert(err, jc.ErrorIsNil)
		c.Assert(s.clock.WaitAdvance(callsite.DefaultCheckInterval, testing.LongWait, 1), jc.ErrorIsNil)
	}
	c.Check(cache.Enabled(), jc.IsTrue)
	workertest.CheckAlive(c, cache)
}

func (s *cacheSuite) TestDisablesWhenQuiescent(c *gc.C) {
	cache := s.newCache(c)
	_, err := cache.Structure(reflect.TypeOf(&conn{}), "main")
	c.Assert(err, jc.ErrorIsNil)

	for i := 0; i < 5; i++ {
		c.Assert(s.clock.WaitAdvance(callsite.DefaultCheckInterval, testing.LongWait, 1), jc.ErrorIsNil)
	}
	err = workertest.CheckKilled(c, cache)
	c.Assert(err, jc.ErrorIsNil)

	stats := cache.Stats()
	c.Check(stats.Enabled, jc.IsFalse)
	c.Check(stats.Size, gc.Equals, 0)

	// Lookups still work, they just are not memoised.
	st, err := cache.Structure(reflect.TypeOf(&conn{}), "main")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(st.HasMethod("Exec"), jc.IsTrue)
	c.Check(cache.Stats().Size, gc.Equals, 0)
}
