// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

import (
	"context"
	"strconv"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel/propagation"
)

// Header keys used to carry a call chain across process boundaries.
const (
	TraceIDHeader     = "x-shadow-trace-id"
	InvokeIDHeader    = "x-shadow-invoke-id"
	ClusterTestHeader = "x-shadow-cluster-test"
	DebugHeader       = "x-shadow-debug"
	UserDataHeader    = "x-shadow-user-data"
)

type contextKey struct{}

// WithContext returns a copy of ctx carrying ic.
func WithContext(ctx context.Context, ic *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ic)
}

// FromContext returns the invocation context carried by ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	ic, ok := ctx.Value(contextKey{}).(*Context)
	return ic, ok && ic != nil
}

// IsClusterTest reports whether ctx carries cluster test traffic.
func IsClusterTest(ctx context.Context) bool {
	ic, ok := FromContext(ctx)
	return ok && ic.IsClusterTest()
}

// CheckLive returns ErrContextDestroyed when ctx carries an invocation
// context that has been destroyed. A ctx without one is live.
func CheckLive(ctx context.Context) error {
	if ic, ok := FromContext(ctx); ok && ic.Destroyed() {
		return errors.Annotatef(ErrContextDestroyed, "trace %q invoke %q", ic.TraceID(), ic.InvokeID())
	}
	return nil
}

// Snapshot carries a call chain across a goroutine boundary. The captured
// context is a child of the one current at capture time, so the two
// goroutines never share a context.
type Snapshot struct {
	ic *Context
}

// Capture takes a snapshot of the call chain carried by ctx. Capturing a
// context without a call chain yields an empty snapshot.
func Capture(ctx context.Context) (Snapshot, error) {
	ic, ok := FromContext(ctx)
	if !ok {
		return Snapshot{}, nil
	}
	child, err := ic.NewChild()
	if err != nil {
		return Snapshot{}, errors.Trace(err)
	}
	return Snapshot{ic: child}, nil
}

// Empty reports whether the snapshot holds no call chain.
func (s Snapshot) Empty() bool {
	return s.ic == nil
}

// Restore attaches the captured call chain to ctx, which is typically the
// context of the continuation running on another goroutine.
func (s Snapshot) Restore(ctx context.Context) context.Context {
	if s.ic == nil {
		return ctx
	}
	return WithContext(ctx, s.ic)
}

// Propagator is an OpenTelemetry TextMapPropagator for call chains.
type Propagator struct {
	// Options are applied to contexts created by Extract.
	Options []Option
}

var _ propagation.TextMapPropagator = Propagator{}

// Inject writes the call chain carried by ctx into carrier.
func (p Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	ic, ok := FromContext(ctx)
	if !ok || ic.Destroyed() || ic.TraceID() == "" {
		return
	}
	carrier.Set(TraceIDHeader, ic.TraceID())
	carrier.Set(InvokeIDHeader, ic.InvokeID())
	carrier.Set(ClusterTestHeader, strconv.FormatBool(ic.IsClusterTest()))
	if ic.IsDebug() {
		carrier.Set(DebugHeader, "true")
	}
	if data := ic.ExportUserData(); data != "" {
		carrier.Set(UserDataHeader, data)
	}
}

// Extract reads a call chain from carrier and returns ctx carrying it. The
// extracted context continues the caller's invoke id.
func (p Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	traceID := carrier.Get(TraceIDHeader)
	if traceID == "" {
		return ctx
	}
	clusterTest, _ := strconv.ParseBool(carrier.Get(ClusterTestHeader))
	debug, _ := strconv.ParseBool(carrier.Get(DebugHeader))

	opts := append([]Option{}, p.Options...)
	opts = append(opts, WithClusterTest(clusterTest), WithDebug(debug))
	ic := New(traceID, opts...)
	if invokeID := carrier.Get(InvokeIDHeader); invokeID != "" {
		ic.invokeID = invokeID
	}
	ic.ImportUserData(carrier.Get(UserDataHeader))
	return WithContext(ctx, ic)
}

// Fields returns the header keys the propagator reads and writes.
func (p Propagator) Fields() []string {
	return []string{TraceIDHeader, InvokeIDHeader, ClusterTestHeader, DebugHeader, UserDataHeader}
}
