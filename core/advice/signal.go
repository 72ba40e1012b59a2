// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package advice

import "fmt"

// SignalKind enumerates the ways an interceptor can steer a call.
type SignalKind int

const (
	// SignalContinue lets the call proceed.
	SignalContinue SignalKind = iota
	// SignalReturnImmediately skips the call and returns a value instead.
	SignalReturnImmediately
	// SignalThrowImmediately skips the call and fails with an error instead.
	SignalThrowImmediately
)

// String implements fmt.Stringer.
func (k SignalKind) String() string {
	switch k {
	case SignalContinue:
		return "continue"
	case SignalReturnImmediately:
		return "return-immediately"
	case SignalThrowImmediately:
		return "throw-immediately"
	}
	return fmt.Sprintf("signal(%d)", int(k))
}

// ControlSignal is returned by an interceptor immediately before the
// intercepted call. The zero value continues.
type ControlSignal struct {
	kind  SignalKind
	value any
	err   error
}

// Continue lets the intercepted call proceed.
func Continue() ControlSignal {
	return ControlSignal{kind: SignalContinue}
}

// ReturnImmediately short-circuits the intercepted call with v.
func ReturnImmediately(v any) ControlSignal {
	return ControlSignal{kind: SignalReturnImmediately, value: v}
}

// ThrowImmediately short-circuits the intercepted call with err.
func ThrowImmediately(err error) ControlSignal {
	return ControlSignal{kind: SignalThrowImmediately, err: err}
}

// Kind returns the variant of the signal.
func (s ControlSignal) Kind() SignalKind {
	return s.kind
}

// Value returns the value of a ReturnImmediately signal.
func (s ControlSignal) Value() any {
	return s.value
}

// Err returns the error of a ThrowImmediately signal.
func (s ControlSignal) Err() error {
	return s.err
}

// String implements fmt.Stringer.
func (s ControlSignal) String() string {
	return s.kind.String()
}
