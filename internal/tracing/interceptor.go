// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package tracing records a span for every outermost intercepted call.
package tracing

import (
	"context"
	"reflect"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/internal/dispatch"
)

// Span attribute keys.
const (
	AttrTraceID     = attribute.Key("shadow.trace_id")
	AttrInvokeID    = attribute.Key("shadow.invoke_id")
	AttrClusterTest = attribute.Key("shadow.cluster_test")
	AttrTarget      = attribute.Key("shadow.target")
	AttrMethod      = attribute.Key("shadow.method")
	AttrResultCode  = attribute.Key("shadow.result_code")
	AttrTimeout     = attribute.Key("shadow.timeout")
)

// Interceptor starts a span before the call and ends it when the call
// returns. A call short-circuited before this interceptor's BeforeLast
// runs gets no span, so chain it after interceptors that short-circuit.
type Interceptor struct {
	dispatch.NopInterceptor

	tracer      trace.Tracer
	stackTraces bool
}

// NewInterceptor returns an Interceptor that starts spans with tracer.
func NewInterceptor(tracer trace.Tracer, stackTraces bool) *Interceptor {
	return &Interceptor{tracer: tracer, stackTraces: stackTraces}
}

// BeforeLast is part of the dispatch.Interceptor interface.
func (i *Interceptor) BeforeLast(ctx context.Context, adv *advice.Advice) (advice.ControlSignal, error) {
	target := targetName(adv)
	attrs := []attribute.KeyValue{
		AttrTarget.String(target),
		AttrMethod.String(adv.Method()),
		AttrClusterTest.Bool(adv.IsClusterTest()),
	}
	if ic := adv.Invocation(); ic != nil {
		attrs = append(attrs,
			AttrTraceID.String(ic.TraceID()),
			AttrInvokeID.String(ic.InvokeID()),
		)
	}
	_, span := i.tracer.Start(ctx, target+"."+adv.Method(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	adv.Attach(span)
	return advice.Continue(), nil
}

// AfterTrace is part of the dispatch.Interceptor interface.
func (i *Interceptor) AfterTrace(_ context.Context, adv *advice.Advice) error {
	span, ok := adv.Attachment().(trace.Span)
	if !ok {
		return nil
	}
	i.end(span, adv)
	return nil
}

// ExceptionTrace is part of the dispatch.Interceptor interface.
func (i *Interceptor) ExceptionTrace(_ context.Context, adv *advice.Advice) error {
	span, ok := adv.Attachment().(trace.Span)
	if !ok {
		return nil
	}
	if err := adv.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(AttrTimeout.Bool(dispatch.IsTimeout(err)))
	}
	i.end(span, adv)
	return nil
}

func (i *Interceptor) end(span trace.Span, adv *advice.Advice) {
	if ic := adv.Invocation(); ic != nil {
		span.SetAttributes(AttrResultCode.String(ic.ResultCode()))
	}
	span.End(trace.WithStackTrace(i.stackTraces))
}

func targetName(adv *advice.Advice) string {
	t := reflect.TypeOf(adv.Target())
	if t == nil {
		return "nil"
	}
	return t.String()
}
