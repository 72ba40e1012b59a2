// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package scope_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/shadow/internal/scope"
)

type guardSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&guardSuite{})

func (s *guardSuite) TestEnterExit(c *gc.C) {
	g := scope.NewGuard()
	c.Check(g.Enter("jdbc"), gc.Equals, 1)
	c.Check(g.Enter("jdbc"), gc.Equals, 2)
	c.Check(g.Enter("redis"), gc.Equals, 1)
	c.Check(g.Depth("jdbc"), gc.Equals, 2)

	depth, err := g.Exit("jdbc")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(depth, gc.Equals, 1)
	depth, err = g.Exit("jdbc")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(depth, gc.Equals, 0)
	c.Check(g.Balanced(), jc.IsFalse)

	_, err = g.Exit("redis")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(g.Balanced(), jc.IsTrue)
}

func (s *guardSuite) TestExitUnderflow(c *gc.C) {
	g := scope.NewGuard()
	_, err := g.Exit("jdbc")
	c.Check(errors.Is(err, scope.ErrUnbalanced), jc.IsTrue)
	c.Check(g.Depth("jdbc"), gc.Equals, 0)
}

func (s *guardSuite) TestNestedSymmetry(c *gc.C) {
	g := scope.NewGuard()
	var topLevel int

	var call func(depth int)
	call = func(depth int) {
		if g.Enter("http") == 1 {
			topLevel++
		}
		defer func() {
			_, err := g.Exit("http")
			c.Check(err, jc.ErrorIsNil)
		}()
		if depth > 0 {
			call(depth - 1)
		}
	}
	for i := 0; i < 3; i++ {
		call(5)
	}
	c.Check(topLevel, gc.Equals, 3)
	c.Check(g.Balanced(), jc.IsTrue)
}

func (s *guardSuite) TestEnsure(c *gc.C) {
	ctx, g := scope.Ensure(context.Background())
	got, ok := scope.FromContext(ctx)
	c.Assert(ok, jc.IsTrue)
	c.Check(got, gc.Equals, g)

	ctx2, g2 := scope.Ensure(ctx)
	c.Check(ctx2, gc.Equals, ctx)
	c.Check(g2, gc.Equals, g)
}

func (s *guardSuite) TestFromContextMissing(c *gc.C) {
	_, ok := scope.FromContext(context.Background())
	c.Check(ok, jc.IsFalse)
}

func (s *guardSuite) TestFork(c *gc.C) {
	ctx, g := scope.Ensure(context.Background())
	g.Enter("http")

	forked, fg := scope.Fork(ctx)
	c.Check(fg, gc.Not(gc.Equals), g)
	got, ok := scope.FromContext(forked)
	c.Assert(ok, jc.IsTrue)
	c.Check(got, gc.Equals, fg)
	c.Check(fg.Depth("http"), gc.Equals, 1)

	c.Check(fg.Enter("http"), gc.Equals, 2)
	c.Check(fg.Enter("sql"), gc.Equals, 1)
	c.Check(g.Depth("http"), gc.Equals, 1)
	c.Check(g.Depth("sql"), gc.Equals, 0)

	// Siblings forked from the same chain start from the same depths.
	_, sibling := scope.Fork(ctx)
	c.Check(sibling.Enter("sql"), gc.Equals, 1)
}

func (s *guardSuite) TestForkWithoutGuard(c *gc.C) {
	ctx, g := scope.Fork(context.Background())
	got, ok := scope.FromContext(ctx)
	c.Assert(ok, jc.IsTrue)
	c.Check(got, gc.Equals, g)
	c.Check(g.Balanced(), jc.IsTrue)
}
