// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatch

import (
	"context"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/internal/callsite"
)

// Interceptor observes and steers an intercepted call. Errors returned from
// any method are logged and counted by the Dispatcher; they never reach the
// caller of the intercepted call.
type Interceptor interface {
	// BeforeFirst runs for every dispatched call, before the scope is
	// consulted.
	BeforeFirst(ctx context.Context, adv *advice.Advice) error

	// BeforeLast runs immediately before the outermost call in a scope is
	// allowed to proceed. The returned signal can short-circuit the call.
	BeforeLast(ctx context.Context, adv *advice.Advice) (advice.ControlSignal, error)

	// AfterTrace runs after the outermost call in a scope returned without
	// error. It may rewrite the result with adv.SetReturn.
	AfterTrace(ctx context.Context, adv *advice.Advice) error

	// ExceptionTrace runs after the outermost call in a scope returned an
	// error, which is available from adv.Err. The error is returned to the
	// caller unchanged regardless of what ExceptionTrace does.
	ExceptionTrace(ctx context.Context, adv *advice.Advice) error
}

// Binding ties an interceptor to the scope and call sites it applies to.
type Binding struct {
	// Scope names the re-entrancy scope. Nested dispatches in the same
	// scope on one call chain skip the interceptor.
	Scope string

	// Loader is the namespace the target types were loaded from.
	Loader string

	// Matcher selects the targets that are intercepted. A nil Matcher
	// intercepts every target.
	Matcher callsite.Matcher

	Interceptor Interceptor
}

// NopInterceptor does nothing. Embed it to implement only some phases.
type NopInterceptor struct{}

// BeforeFirst is part of the Interceptor interface.
func (NopInterceptor) BeforeFirst(context.Context, *advice.Advice) error { return nil }

// BeforeLast is part of the Interceptor interface.
func (NopInterceptor) BeforeLast(context.Context, *advice.Advice) (advice.ControlSignal, error) {
	return advice.Continue(), nil
}

// AfterTrace is part of the Interceptor interface.
func (NopInterceptor) AfterTrace(context.Context, *advice.Advice) error { return nil }

// ExceptionTrace is part of the Interceptor interface.
func (NopInterceptor) ExceptionTrace(context.Context, *advice.Advice) error { return nil }

// Chain combines interceptors into one. Every interceptor runs in every
// phase; the first non-continue signal from BeforeLast wins and the first
// error is returned.
func Chain(interceptors ...Interceptor) Interceptor {
	return chain(interceptors)
}

type chain []Interceptor

func (c chain) BeforeFirst(ctx context.Context, adv *advice.Advice) error {
	var first error
	for _, i := range c {
		if err := i.BeforeFirst(ctx, adv); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c chain) BeforeLast(ctx context.Context, adv *advice.Advice) (advice.ControlSignal, error) {
	var first error
	for _, i := range c {
		signal, err := i.BeforeLast(ctx, adv)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if signal.Kind() != advice.SignalContinue {
			return signal, first
		}
	}
	return advice.Continue(), first
}

func (c chain) AfterTrace(ctx context.Context, adv *advice.Advice) error {
	var first error
	for _, i := range c {
		if err := i.AfterTrace(ctx, adv); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c chain) ExceptionTrace(ctx context.Context, adv *advice.Advice) error {
	var first error
	for _, i := range c {
		if err := i.ExceptionTrace(ctx, adv); err != nil && first == nil {
			first = err
		}
	}
	return first
}
