// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package scope tracks how deeply a call chain is nested inside named
// interception scopes, so that an intercepted call which internally makes
// another intercepted call of the same kind is only handled once.
package scope

import (
	"context"
	"maps"
	"sync"

	"github.com/juju/errors"
)

// ErrUnbalanced is returned when a scope is exited more often than it was
// entered.
const ErrUnbalanced = errors.ConstError("scope exited without being entered")

// Guard records the depth of each named scope for one call chain. A call
// chain is the counterpart of a thread: it is carried on a context, and a
// chain that continues on another goroutine gets its own guard (see Fork).
type Guard struct {
	mu     sync.Mutex
	depths map[string]int
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{
		depths: make(map[string]int),
	}
}

// Enter increments the depth of scope and returns the new depth. A return
// value of 1 means this is the top level entry.
func (g *Guard) Enter(scope string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.depths[scope]++
	return g.depths[scope]
}

// Exit decrements the depth of scope and returns the new depth. A return
// value of 0 means the top level entry has been left.
func (g *Guard) Exit(scope string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	depth, ok := g.depths[scope]
	if !ok || depth <= 0 {
		return 0, errors.Annotatef(ErrUnbalanced, "scope %q", scope)
	}
	depth--
	if depth == 0 {
		delete(g.depths, scope)
	} else {
		g.depths[scope] = depth
	}
	return depth, nil
}

// Depth returns the current depth of scope.
func (g *Guard) Depth(scope string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.depths[scope]
}

// Balanced reports whether every scope entered has been exited.
func (g *Guard) Balanced() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.depths) == 0
}

type guardKey struct{}

// WithGuard returns a copy of ctx carrying g.
func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, guardKey{}, g)
}

// FromContext returns the guard carried by ctx, if any.
func FromContext(ctx context.Context) (*Guard, bool) {
	g, ok := ctx.Value(guardKey{}).(*Guard)
	return g, ok && g != nil
}

// Ensure returns the guard carried by ctx, attaching a new one when ctx has
// none. The returned context must be used for the rest of the call chain.
func Ensure(ctx context.Context) (context.Context, *Guard) {
	if g, ok := FromContext(ctx); ok {
		return ctx, g
	}
	g := NewGuard()
	return WithGuard(ctx, g), g
}

// Fork returns a copy of ctx carrying a new guard that starts at the depths
// of the guard carried by ctx, or empty when ctx has none. Entering and
// exiting scopes on the fork never changes the original guard.
func Fork(ctx context.Context) (context.Context, *Guard) {
	g := NewGuard()
	if parent, ok := FromContext(ctx); ok {
		parent.mu.Lock()
		maps.Copy(g.depths, parent.depths)
		parent.mu.Unlock()
	}
	return WithGuard(ctx, g), g
}
