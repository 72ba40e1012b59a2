// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tracing

import (
	"context"
	"time"

	"github.com/juju/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/tomb.v2"
)

// Client manages connections to the collector.
type Client interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Provider is the part of a tracer provider the worker manages.
type Provider interface {
	ForceFlush(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ClientConfig describes where spans are exported to.
type ClientConfig struct {
	Endpoint           string
	InsecureSkipVerify bool
	ServiceName        string
	ServiceVersion     string
	InstanceID         string
}

// NewClientFunc creates the exporting client, its tracer provider and a
// tracer.
type NewClientFunc func(context.Context, ClientConfig) (Client, Provider, trace.Tracer, error)

// NewClient returns an OTLP gRPC client exporting to config.Endpoint.
func NewClient(ctx context.Context, config ClientConfig) (Client, Provider, trace.Tracer, error) {
	options := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(config.Endpoint),
	}
	if config.InsecureSkipVerify {
		options = append(options, otlptracegrpc.WithInsecure())
	}

	client := otlptracegrpc.NewClient(options...)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.ServiceInstanceID(config.InstanceID),
		)),
	)
	return client, tp, tp.Tracer(config.ServiceName), nil
}

// Logger represents the logging methods called.
type Logger interface {
	Infof(message string, args ...any)
}

// Exporter owns an exporting client for the lifetime of the worker and
// flushes it when the worker stops.
type Exporter struct {
	tomb tomb.Tomb

	client   Client
	provider Provider
	tracer   trace.Tracer
	logger   Logger
}

// NewExporter creates the client with newClient and starts the worker.
func NewExporter(ctx context.Context, config ClientConfig, newClient NewClientFunc, logger Logger) (*Exporter, error) {
	client, provider, tracer, err := newClient(ctx, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	e := &Exporter{
		client:   client,
		provider: provider,
		tracer:   tracer,
		logger:   logger,
	}
	e.tomb.Go(e.loop)
	return e, nil
}

// Tracer returns the tracer spans are started with.
func (e *Exporter) Tracer() trace.Tracer {
	return e.tracer
}

// Kill implements the worker.Worker interface.
func (e *Exporter) Kill() {
	e.tomb.Kill(nil)
}

// Wait implements the worker.Worker interface.
func (e *Exporter) Wait() error {
	return e.tomb.Wait()
}

func (e *Exporter) loop() error {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.provider.ForceFlush(ctx); err != nil {
			e.logger.Infof("failed to flush client: %v", err)
		}
		if err := e.client.Stop(ctx); err != nil {
			e.logger.Infof("failed to stop client: %v", err)
		}
		if err := e.provider.Shutdown(ctx); err != nil {
			e.logger.Infof("failed to shutdown provider: %v", err)
		}
	}()

	<-e.tomb.Dying()
	return tomb.ErrDying
}
