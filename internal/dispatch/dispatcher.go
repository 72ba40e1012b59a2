// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatch runs interceptors around intercepted calls. The
// outermost call in each scope is wrapped in four phases; nested calls in
// the same scope only see BeforeFirst.
package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/juju/errors"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/core/invocation"
	"github.com/juju/shadow/internal/callsite"
	"github.com/juju/shadow/internal/scope"
)

// Phase identifies an interceptor phase.
type Phase int

const (
	PhaseBeforeFirst Phase = iota
	PhaseBeforeLast
	PhaseAfterTrace
	PhaseExceptionTrace
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseBeforeFirst:
		return "before-first"
	case PhaseBeforeLast:
		return "before-last"
	case PhaseAfterTrace:
		return "after-trace"
	case PhaseExceptionTrace:
		return "exception-trace"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Call is the intercepted call.
type Call func(ctx context.Context) (any, error)

// StructureSource provides the structure of call site targets.
type StructureSource interface {
	Structure(t reflect.Type, loader string) (*callsite.Structure, error)
}

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
	IsTraceEnabled() bool
}

// Config holds the dependencies of a Dispatcher.
type Config struct {
	Structures StructureSource
	Logger     Logger
	Metrics    *Collector
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if c.Structures == nil {
		return errors.NotValidf("nil Structures")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Metrics == nil {
		return errors.NotValidf("nil Metrics")
	}
	return nil
}

// Dispatcher wraps intercepted calls in interceptor phases.
type Dispatcher struct {
	structures StructureSource
	logger     Logger
	metrics    *Collector
}

// NewDispatcher returns a Dispatcher for the config.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{
		structures: config.Structures,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}, nil
}

// Invoke runs call wrapped by the binding's interceptor. Whatever the
// interceptor does, the result and error of call are returned unchanged,
// except when BeforeLast short-circuits the call or AfterTrace explicitly
// rewrites the result.
func (d *Dispatcher) Invoke(ctx context.Context, binding Binding, adv *advice.Advice, call Call) (any, error) {
	if err := invocation.CheckLive(ctx); err != nil {
		d.metrics.Invocations(binding.Scope, OutcomeRejected).Inc()
		return nil, errors.Trace(err)
	}
	if ic := adv.Invocation(); ic != nil && ic.Destroyed() {
		d.metrics.Invocations(binding.Scope, OutcomeRejected).Inc()
		return nil, errors.Annotatef(invocation.ErrContextDestroyed, "%s.%s", targetName(adv), adv.Method())
	}
	if !d.matches(binding, adv) {
		d.metrics.Invocations(binding.Scope, OutcomeUnmatched).Inc()
		return call(ctx)
	}
	if adv.Invocation() == nil {
		if ic, ok := invocation.FromContext(ctx); ok {
			adv.SetInvocation(ic)
		}
	}

	d.runPhase(binding.Scope, PhaseBeforeFirst, adv, func() error {
		return binding.Interceptor.BeforeFirst(ctx, adv)
	})

	// Each dispatch enters the scope on its own fork of the guard, so
	// sibling calls made concurrently from one chain do not nest.
	ctx, guard := scope.Fork(ctx)
	depth := guard.Enter(binding.Scope)
	defer func() {
		if _, err := guard.Exit(binding.Scope); err != nil {
			d.logger.Errorf("leaving scope %q: %v", binding.Scope, err)
		}
	}()
	if depth > 1 {
		if d.logger.IsTraceEnabled() {
			d.logger.Tracef("%s.%s nested at depth %d in scope %q", targetName(adv), adv.Method(), depth, binding.Scope)
		}
		d.metrics.Invocations(binding.Scope, OutcomeNested).Inc()
		return call(ctx)
	}

	signal := advice.Continue()
	d.runPhase(binding.Scope, PhaseBeforeLast, adv, func() error {
		s, err := binding.Interceptor.BeforeLast(ctx, adv)
		if err != nil {
			return err
		}
		signal = s
		return nil
	})

	switch signal.Kind() {
	case advice.SignalReturnImmediately:
		adv.SetReturn(signal.Value())
		d.recordShortCircuit(adv, false)
		d.metrics.Invocations(binding.Scope, OutcomeReturned).Inc()
		return signal.Value(), nil
	case advice.SignalThrowImmediately:
		err := signal.Err()
		if err == nil {
			err = errors.Errorf("%s.%s short-circuited without an error", targetName(adv), adv.Method())
		}
		adv.SetErr(err)
		d.recordShortCircuit(adv, true)
		d.metrics.Invocations(binding.Scope, OutcomeThrown).Inc()
		return nil, err
	case advice.SignalContinue:
	default:
		d.logger.Warningf("ignoring unknown signal %v for %s.%s", signal, targetName(adv), adv.Method())
	}

	result, err := call(ctx)
	code := ResultCode(err)
	if ic := adv.Invocation(); ic != nil {
		ic.SetResultCode(code)
		ic.SetHasError(err != nil)
	}
	if err != nil {
		adv.SetErr(err)
		adv.SetReturn(result)
		d.runPhase(binding.Scope, PhaseExceptionTrace, adv, func() error {
			return binding.Interceptor.ExceptionTrace(ctx, adv)
		})
		outcome := OutcomeFailure
		if code == invocation.ResultTimeout {
			outcome = OutcomeTimeout
		}
		d.metrics.Invocations(binding.Scope, outcome).Inc()
		return result, err
	}

	adv.SetReturn(result)
	d.runPhase(binding.Scope, PhaseAfterTrace, adv, func() error {
		return binding.Interceptor.AfterTrace(ctx, adv)
	})
	d.metrics.Invocations(binding.Scope, OutcomeSuccess).Inc()
	return adv.Return(), nil
}

// recordShortCircuit marks the call as answered by an interceptor rather
// than by the real target.
func (d *Dispatcher) recordShortCircuit(adv *advice.Advice, failed bool) {
	if ic := adv.Invocation(); ic != nil {
		ic.SetResultCode(invocation.ResultMocked)
		ic.SetHasError(failed)
	}
}

func (d *Dispatcher) matches(binding Binding, adv *advice.Advice) bool {
	if binding.Interceptor == nil {
		return false
	}
	if binding.Matcher == nil {
		return true
	}
	s, err := d.structures.Structure(reflect.TypeOf(adv.Target()), binding.Loader)
	if err != nil {
		d.logger.Debugf("not intercepting %s.%s: %v", targetName(adv), adv.Method(), err)
		return false
	}
	return binding.Matcher.Match(s)
}

// runPhase isolates a phase: errors and panics are logged and counted.
func (d *Dispatcher) runPhase(scopeName string, phase Phase, adv *advice.Advice, f func() error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("%s panicked for %s.%s: %v", phase, targetName(adv), adv.Method(), r)
			d.metrics.Faults(scopeName, phase).Inc()
		}
	}()
	if err := f(); err != nil {
		d.logger.Warningf("%s failed for %s.%s: %v", phase, targetName(adv), adv.Method(), err)
		d.metrics.Faults(scopeName, phase).Inc()
	}
}

func targetName(adv *advice.Advice) string {
	t := reflect.TypeOf(adv.Target())
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
