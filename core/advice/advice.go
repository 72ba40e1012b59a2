// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package advice holds the record every interceptor sees for an intercepted
// call, and the results interceptors hand back to steer the call.
package advice

import (
	"github.com/juju/shadow/core/invocation"
)

// Advice describes one intercepted call. It is created by the adapter that
// intercepts the call and is passed to every phase of dispatch, so state
// attached before the call is visible after it.
type Advice struct {
	target     any
	method     string
	params     []any
	ret        any
	err        error
	attachment any
	marks      map[string]struct{}
	invocation *invocation.Context
}

// New returns the advice for a call of method on target with params.
func New(target any, method string, params ...any) *Advice {
	return &Advice{
		target: target,
		method: method,
		params: params,
	}
}

// Target returns the receiver of the intercepted call.
func (a *Advice) Target() any {
	return a.target
}

// Method returns the name of the intercepted method.
func (a *Advice) Method() string {
	return a.method
}

// Params returns the arguments of the intercepted call. Interceptors may
// rewrite elements in place before the call proceeds.
func (a *Advice) Params() []any {
	return a.params
}

// Return returns the result of the call, once there is one.
func (a *Advice) Return() any {
	return a.ret
}

// SetReturn replaces the result handed back to the caller.
func (a *Advice) SetReturn(v any) {
	a.ret = v
}

// Err returns the error raised by the call, once there is one.
func (a *Advice) Err() error {
	return a.err
}

// SetErr records the error raised by the call.
func (a *Advice) SetErr(err error) {
	a.err = err
}

// Attach stores call scoped state for later phases.
func (a *Advice) Attach(v any) {
	a.attachment = v
}

// Attachment returns the state stored by Attach.
func (a *Advice) Attachment() any {
	return a.attachment
}

// Mark tags the call.
func (a *Advice) Mark(tag string) {
	if a.marks == nil {
		a.marks = make(map[string]struct{})
	}
	a.marks[tag] = struct{}{}
}

// HasMark reports whether the call carries tag.
func (a *Advice) HasMark(tag string) bool {
	_, ok := a.marks[tag]
	return ok
}

// Invocation returns the invocation context of the call, if it has one.
func (a *Advice) Invocation() *invocation.Context {
	return a.invocation
}

// SetInvocation binds the invocation context of the call.
func (a *Advice) SetInvocation(ic *invocation.Context) {
	a.invocation = ic
}

// IsClusterTest reports whether the call belongs to cluster test traffic.
func (a *Advice) IsClusterTest() bool {
	return a.invocation != nil && a.invocation.IsClusterTest()
}
