// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package shadow substitutes shadow resources for business resources when
// cluster-test traffic reaches them.
//
// Each business resource gets at most one shadow counterpart, created the
// first time cluster-test traffic is routed to it. Creation is serialised
// per resource; once a counterpart exists, lookups take no locks.
package shadow

import (
	"context"
	"io"
	"reflect"
	"sync"

	"github.com/im7mortal/kmutex"
	"github.com/juju/errors"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/core/invocation"
)

// Factory builds shadow resources for one family of business resources.
type Factory interface {
	// ResourceKey returns the identity of a business resource. Resources
	// with the same key share a shadow counterpart.
	ResourceKey(target any) (string, error)

	// CreateShadowResource builds the shadow counterpart of target. It
	// returns nil, nil when no shadow is configured for target.
	CreateShadowResource(ctx context.Context, target any) (any, error)

	// NeedsRouting reports whether calls on target should be routed. It
	// returns false for targets that are themselves shadow resources.
	NeedsRouting(target any) bool
}

// Family describes a kind of business resource that can be shadowed.
type Family struct {
	Name       string
	Factory    Factory
	Operations []Operation
}

// Switches reports whether shadow routing is enabled for a family.
type Switches interface {
	ShadowEnabled(family string) bool
}

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// Config holds the dependencies of a Registry.
type Config struct {
	Families []Family
	Switches Switches
	Logger   Logger
	Metrics  *Collector
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if c.Switches == nil {
		return errors.NotValidf("nil Switches")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Metrics == nil {
		return errors.NotValidf("nil Metrics")
	}
	seen := make(map[string]bool)
	for _, f := range c.Families {
		if f.Name == "" {
			return errors.NotValidf("empty family name")
		}
		if f.Factory == nil {
			return errors.NotValidf("nil Factory for family %q", f.Name)
		}
		if seen[f.Name] {
			return errors.NotValidf("duplicate family %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// entry is a cached shadow counterpart. A nil shadow records that the
// business resource has no shadow configured.
type entry struct {
	family   string
	resource string
	shadow   any
}

// Registry routes cluster-test calls to shadow resources.
type Registry struct {
	families map[string]Family
	switches Switches
	logger   Logger
	metrics  *Collector

	locks   *kmutex.Kmutex
	entries sync.Map // family/resource -> *entry
	shadows sync.Map // shadow resource -> struct{}
	shapes  sync.Map // call shape -> Handler
}

// NewRegistry returns a Registry for the config.
func NewRegistry(config Config) (*Registry, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	families := make(map[string]Family, len(config.Families))
	for _, f := range config.Families {
		families[f.Name] = f
	}
	return &Registry{
		families: families,
		switches: config.Switches,
		logger:   config.Logger,
		metrics:  config.Metrics,
		locks:    kmutex.New(),
	}, nil
}

// Route decides whether a call of method on the business resource target
// is diverted to its shadow counterpart. A Passed result means the call
// proceeds against target. A call started on a destroyed invocation context
// is refused with ErrContextDestroyed. A Cutoff result carries the value returned by
// the shadow resource. Once the call is cut off, a non-nil error must be
// returned to the caller; the call must never fall back to target.
func (r *Registry) Route(ctx context.Context, family string, target any, method string, args ...any) (advice.CutOffResult, error) {
	if err := invocation.CheckLive(ctx); err != nil {
		return advice.Passed(), errors.Trace(err)
	}
	if !invocation.IsClusterTest(ctx) {
		return advice.Passed(), nil
	}
	f, ok := r.families[family]
	if !ok {
		return advice.Passed(), errors.NotFoundf("shadow family %q", family)
	}
	if !r.switches.ShadowEnabled(family) || r.IsShadow(target) || !f.Factory.NeedsRouting(target) {
		r.metrics.Routes(family, OutcomePassed).Inc()
		return advice.Passed(), nil
	}

	resource, err := f.Factory.ResourceKey(target)
	if err != nil {
		r.metrics.Routes(family, OutcomeError).Inc()
		return advice.Passed(), errors.Annotatef(err, "identifying %s resource %T", family, target)
	}
	shadow, err := r.shadowFor(ctx, f, resource, target)
	if err != nil {
		if IsConfigurationError(err) {
			r.metrics.Routes(family, OutcomeNotConfigured).Inc()
		} else {
			r.metrics.Routes(family, OutcomeError).Inc()
		}
		return advice.Passed(), errors.Trace(err)
	}

	handler, err := r.resolve(f, resource, shadow, method, args)
	if err != nil {
		r.metrics.Routes(family, OutcomeUnsupported).Inc()
		return advice.Passed(), errors.Trace(err)
	}
	v, err := handler(ctx, shadow, args)
	if err != nil {
		r.metrics.Routes(family, OutcomeError).Inc()
		return advice.Cutoff(nil), err
	}
	r.metrics.Routes(family, OutcomeCutoff).Inc()
	return advice.Cutoff(v), nil
}

// Shadow returns the shadow counterpart of target, creating it if needed.
// It does not consult the cluster-test flag or the family switch.
func (r *Registry) Shadow(ctx context.Context, family string, target any) (any, error) {
	f, ok := r.families[family]
	if !ok {
		return nil, errors.NotFoundf("shadow family %q", family)
	}
	resource, err := f.Factory.ResourceKey(target)
	if err != nil {
		return nil, errors.Annotatef(err, "identifying %s resource %T", family, target)
	}
	return r.shadowFor(ctx, f, resource, target)
}

// IsShadow reports whether v is a shadow resource created by the registry.
func (r *Registry) IsShadow(v any) bool {
	if !hashable(v) {
		return false
	}
	_, ok := r.shadows.Load(v)
	return ok
}

func (r *Registry) shadowFor(ctx context.Context, f Family, resource string, target any) (any, error) {
	key := f.Name + "/" + resource
	if v, ok := r.entries.Load(key); ok {
		return v.(*entry).get()
	}

	r.locks.Lock(key)
	defer r.locks.Unlock(key)
	if v, ok := r.entries.Load(key); ok {
		return v.(*entry).get()
	}

	shadow, err := f.Factory.CreateShadowResource(ctx, target)
	if err != nil {
		// Failed creations are not cached so the next call retries.
		return nil, errors.Annotatef(err, "creating shadow %s for %q", f.Name, resource)
	}
	e := &entry{family: f.Name, resource: resource, shadow: shadow}
	r.entries.Store(key, e)
	if shadow == nil {
		r.logger.Warningf("no shadow %s configured for %q", f.Name, resource)
		return e.get()
	}
	if hashable(shadow) {
		r.shadows.Store(shadow, struct{}{})
	}
	r.metrics.Creations(f.Name).Inc()
	r.logger.Infof("created shadow %s for %q", f.Name, resource)
	return shadow, nil
}

func (e *entry) get() (any, error) {
	if e.shadow == nil {
		return nil, &ConfigurationError{Family: e.family, Resource: e.resource}
	}
	return e.shadow, nil
}

// resolve finds the handler for a call shape, first in the family's
// operation table and then by method name on the shadow resource itself.
// Resolved handlers are cached per shape.
func (r *Registry) resolve(f Family, resource string, shadow any, method string, args []any) (Handler, error) {
	shape := shapeKey(f.Name, shadow, method, args)
	if h, ok := r.shapes.Load(shape); ok {
		return h.(Handler), nil
	}
	var handler Handler
	for _, op := range f.Operations {
		if op.matches(method, args) {
			handler = op.Handler
			break
		}
	}
	if handler == nil {
		h, ok := reflectHandler(shadow, method, args)
		if !ok {
			return nil, &UnsupportedOperationError{
				Family:   f.Name,
				Resource: resource,
				Method:   method,
				ArgTypes: argTypeNames(args),
			}
		}
		handler = h
	}
	r.shapes.Store(shape, handler)
	return handler, nil
}

// Invalidate drops the cached shadow counterpart of a business resource,
// closing it if it is an io.Closer. The next routed call creates a new one.
func (r *Registry) Invalidate(family, resource string) error {
	v, ok := r.entries.LoadAndDelete(family + "/" + resource)
	if !ok {
		return nil
	}
	return r.release(v.(*entry))
}

// Close releases every shadow resource. The registry remains usable and
// will create new counterparts on demand.
func (r *Registry) Close() error {
	var first error
	r.entries.Range(func(k, v any) bool {
		r.entries.Delete(k)
		if err := r.release(v.(*entry)); err != nil && first == nil {
			first = err
		}
		return true
	})
	return first
}

// Len returns the number of cached entries, including negative ones.
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Registry) release(e *entry) error {
	if e.shadow == nil {
		return nil
	}
	if hashable(e.shadow) {
		r.shadows.Delete(e.shadow)
	}
	closer, ok := e.shadow.(io.Closer)
	if !ok {
		return nil
	}
	if err := closer.Close(); err != nil {
		r.logger.Errorf("closing shadow %s for %q: %v", e.family, e.resource, err)
		return errors.Annotatef(err, "closing shadow %s for %q", e.family, e.resource)
	}
	return nil
}

func hashable(v any) bool {
	if v == nil {
		return false
	}
	return reflect.TypeOf(v).Comparable()
}
