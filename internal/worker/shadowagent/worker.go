// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package shadowagent runs the process scoped services of the shadow
// traffic agent. Killing the agent worker detaches it: shadow consumers are
// stopped, shadow resources are closed and the call site cache is dropped.
package shadowagent

import (
	"context"
	"net"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4"
	"github.com/juju/worker/v4/catacomb"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/core/invocation"
	"github.com/juju/shadow/internal/callsite"
	"github.com/juju/shadow/internal/config"
	"github.com/juju/shadow/internal/consumer"
	"github.com/juju/shadow/internal/dispatch"
	"github.com/juju/shadow/internal/mock"
	"github.com/juju/shadow/internal/shadow"
	"github.com/juju/shadow/internal/shadow/sqldb"
	"github.com/juju/shadow/internal/tracing"
)

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
	IsTraceEnabled() bool
}

// ConsumerFamily wires one kind of message consumer into the agent.
type ConsumerFamily struct {
	Name      string
	JoinPoint string
	Extract   consumer.ConfigExtractor
	Build     consumer.Builder

	// Admin is optional. Without it shadow topics and groups are not
	// checked before shadow consumers start.
	Admin consumer.BrokerAdmin
}

// Config holds the dependencies of the agent worker.
type Config struct {
	// Agent is the configuration in force when the worker starts.
	Agent config.Config

	// ConfigPath, when set, is watched and reloaded on change.
	ConfigPath string

	// Version is reported with exported spans.
	Version string

	Clock  clock.Clock
	Logger Logger

	// Registerer is optional. When set, the agent's collectors are
	// registered for the lifetime of the worker.
	Registerer prometheus.Registerer

	// Families are resource families shadowed alongside SQL databases.
	Families []shadow.Family

	ConsumerFamilies []ConsumerFamily

	NewTracingClient tracing.NewClientFunc

	// IP and PID are encoded into trace ids.
	IP  net.IP
	PID int
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return errors.Trace(err)
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Agent.Tracing.Enabled && c.NewTracingClient == nil {
		return errors.NotValidf("nil NewTracingClient with tracing enabled")
	}
	seen := make(map[string]bool)
	for _, f := range c.ConsumerFamilies {
		if f.Name == "" {
			return errors.NotValidf("empty consumer family name")
		}
		if seen[f.Name] {
			return errors.NotValidf("duplicate consumer family %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Agent is the worker owning the shadow traffic services.
type Agent struct {
	catacomb catacomb.Catacomb

	config Config
	id     string

	switches    *config.Switches
	ids         *invocation.IDGenerator
	cache       *callsite.Cache
	dispatcher  *dispatch.Dispatcher
	registry    *shadow.Registry
	mocks       *mock.Store
	interceptor dispatch.Interceptor
	objects     *consumer.SyncObjectStore
	registers   map[string]*consumer.Register
	prechecks   map[string]*consumer.PreChecker
	collectors  []prometheus.Collector

	mu      sync.RWMutex
	current config.Config
}

// NewWorker starts the agent.
func NewWorker(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	dispatchMetrics := dispatch.NewMetricsCollector()
	a := &Agent{
		config:     cfg,
		id:         uuid.NewString(),
		switches:   config.NewSwitches(cfg.Agent),
		objects:    consumer.NewSyncObjectStore(),
		registers:  make(map[string]*consumer.Register),
		prechecks:  make(map[string]*consumer.PreChecker),
		current:    cfg.Agent,
		collectors: []prometheus.Collector{dispatchMetrics},
	}

	embedded := 0
	if cfg.Agent.Sampling.UseTraceIDInterval {
		embedded = cfg.Agent.Sampling.Interval
	}
	ids, err := invocation.NewIDGenerator(invocation.IDGeneratorConfig{
		Clock:                    cfg.Clock,
		IP:                       cfg.IP,
		PID:                      cfg.PID,
		EmbeddedSamplingInterval: embedded,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	a.ids = ids

	if err := a.setUpRouting(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := a.setUpConsumers(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := a.register(); err != nil {
		return nil, errors.Trace(err)
	}

	init, err := a.startWorkers(dispatchMetrics)
	if err != nil {
		a.unregister()
		return nil, errors.Trace(err)
	}

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &a.catacomb,
		Work: a.loop,
		Init: init,
	}); err != nil {
		a.unregister()
		return nil, errors.Trace(err)
	}
	return a, nil
}

func (a *Agent) setUpRouting() error {
	cfg := a.config
	shadowMetrics := shadow.NewMetricsCollector()
	a.collectors = append(a.collectors, shadowMetrics)

	mocks, err := mock.NewStore(mocksFromConfig(cfg.Agent.Mocks)...)
	if err != nil {
		return errors.Trace(err)
	}
	a.mocks = mocks

	sqlFactory, err := sqldb.NewFactory(cfg.Agent.Datasources)
	if err != nil {
		return errors.Trace(err)
	}
	families := append([]shadow.Family{sqldb.Family(sqlFactory)}, cfg.Families...)
	a.registry, err = shadow.NewRegistry(shadow.Config{
		Families: families,
		Switches: a.switches,
		Logger:   cfg.Logger,
		Metrics:  shadowMetrics,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (a *Agent) setUpConsumers() error {
	cfg := a.config
	naming := cfg.Agent.Consumer.Naming()
	for _, f := range cfg.ConsumerFamilies {
		reg, err := consumer.NewRegister(consumer.RegisterConfig{
			Store:     a.objects,
			JoinPoint: f.JoinPoint,
			Extract:   f.Extract,
			Build:     f.Build,
			Naming:    naming,
			Logger:    cfg.Logger,
		})
		if err != nil {
			return errors.Annotatef(err, "consumer family %q", f.Name)
		}
		a.registers[f.Name] = reg

		if f.Admin == nil {
			continue
		}
		pc, err := consumer.NewPreChecker(consumer.PreCheckerConfig{
			Admin:     f.Admin,
			Store:     a.objects,
			JoinPoint: f.JoinPoint,
			Extract:   f.Extract,
			Naming:    naming,
			Clock:     cfg.Clock,
			Logger:    cfg.Logger,
			Timeout:   cfg.Agent.Consumer.AdminTimeout,
		})
		if err != nil {
			return errors.Annotatef(err, "consumer family %q", f.Name)
		}
		a.prechecks[f.Name] = pc
	}
	return nil
}

// startWorkers returns the workers owned by the agent's catacomb. On error
// every worker already started is stopped.
func (a *Agent) startWorkers(metrics *dispatch.Collector) (_ []worker.Worker, err error) {
	cfg := a.config
	var init []worker.Worker
	defer func() {
		if err != nil {
			for _, w := range init {
				w.Kill()
				_ = w.Wait()
			}
		}
	}()

	a.cache, err = callsite.NewCache(callsite.Config{
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
		Quiescence:    cfg.Agent.Cache.Quiescence,
		CheckInterval: cfg.Agent.Cache.CheckInterval,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	init = append(init, a.cache)

	a.dispatcher, err = dispatch.NewDispatcher(dispatch.Config{
		Structures: a.cache,
		Logger:     cfg.Logger,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	interceptors := []dispatch.Interceptor{mock.NewInterceptor(a.mocks)}
	if cfg.Agent.Tracing.Enabled {
		exporter, err := tracing.NewExporter(context.Background(), tracing.ClientConfig{
			Endpoint:           cfg.Agent.Tracing.Endpoint,
			InsecureSkipVerify: cfg.Agent.Tracing.InsecureSkipVerify,
			ServiceName:        cfg.Agent.AppName,
			ServiceVersion:     cfg.Version,
			InstanceID:         a.id,
		}, cfg.NewTracingClient, cfg.Logger)
		if err != nil {
			return nil, errors.Annotate(err, "starting span exporter")
		}
		init = append(init, exporter)
		interceptors = append(interceptors, tracing.NewInterceptor(exporter.Tracer(), cfg.Agent.Tracing.StackTraces))
	}
	a.interceptor = dispatch.Chain(interceptors...)

	if cfg.ConfigPath != "" {
		watcher, err := config.NewWatcher(config.WatcherConfig{
			Path:   cfg.ConfigPath,
			Apply:  a.reconfigure,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, errors.Annotate(err, "watching agent config")
		}
		init = append(init, watcher)
	}
	return init, nil
}

func (a *Agent) register() error {
	if a.config.Registerer == nil {
		return nil
	}
	for i, c := range a.collectors {
		if err := a.config.Registerer.Register(c); err != nil {
			for _, registered := range a.collectors[:i] {
				a.config.Registerer.Unregister(registered)
			}
			return errors.Annotate(err, "registering agent metrics")
		}
	}
	return nil
}

func (a *Agent) unregister() {
	if a.config.Registerer == nil {
		return
	}
	for _, c := range a.collectors {
		a.config.Registerer.Unregister(c)
	}
}

func (a *Agent) loop() error {
	defer a.detach()
	a.config.Logger.Infof("shadow agent %s attached to %q", a.id, a.config.Agent.AppName)

	<-a.catacomb.Dying()
	return a.catacomb.ErrDying()
}

func (a *Agent) detach() {
	ctx := context.Background()
	for name, reg := range a.registers {
		if err := reg.StopAll(ctx); err != nil {
			a.config.Logger.Warningf("stopping %s shadow consumers: %v", name, err)
		}
	}
	if err := a.registry.Close(); err != nil {
		a.config.Logger.Warningf("closing shadow resources: %v", err)
	}
	a.objects.Clear()
	a.unregister()
	a.config.Logger.Infof("shadow agent %s detached", a.id)
}

// reconfigure applies a reloaded configuration. Datasource mappings are
// fixed for the life of the worker.
func (a *Agent) reconfigure(cfg config.Config) {
	a.switches.Update(cfg)
	if err := a.mocks.Replace(mocksFromConfig(cfg.Mocks)); err != nil {
		a.config.Logger.Errorf("replacing mocks: %v", err)
	}

	a.mu.Lock()
	previous := a.current
	a.current = cfg
	a.mu.Unlock()

	if !slices.Equal(previous.Datasources, cfg.Datasources) {
		a.config.Logger.Warningf("datasource changes take effect when the agent restarts")
	}
	a.config.Logger.Infof("agent config reloaded")
}

func mocksFromConfig(configs []config.MockConfig) []mock.Mock {
	mocks := make([]mock.Mock, 0, len(configs))
	for _, mc := range configs {
		m := mock.Mock{
			Target: mc.Target,
			Method: mc.Method,
			Return: mc.Return,
		}
		if mc.Error != "" {
			m.Err = errors.New(mc.Error)
		}
		mocks = append(mocks, m)
	}
	return mocks
}

// ID returns the instance id of the agent.
func (a *Agent) ID() string {
	return a.id
}

// Switches returns the runtime switches.
func (a *Agent) Switches() *config.Switches {
	return a.switches
}

// NewInvocation starts a new call chain.
func (a *Agent) NewInvocation(clusterTest bool, opts ...invocation.Option) *invocation.Context {
	a.mu.RLock()
	cfg := a.current
	a.mu.RUnlock()

	base := []invocation.Option{
		invocation.WithClusterTest(clusterTest),
		invocation.WithAppName(cfg.AppName),
		invocation.WithLimits(cfg.UserData.Limits()),
		invocation.WithUserDataSwitch(a.switches.UserDataEnabled),
		invocation.WithStartTime(a.config.Clock.Now()),
	}
	return invocation.New(a.ids.Next(clusterTest), append(base, opts...)...)
}

// Sampled reports whether the call chain of ic is sampled under the
// current configuration.
func (a *Agent) Sampled(ic *invocation.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ic.Sampled(a.current.Sampling.Invocation())
}

// Propagator returns the propagator call chains cross process boundaries
// with.
func (a *Agent) Propagator() invocation.Propagator {
	a.mu.RLock()
	cfg := a.current
	a.mu.RUnlock()
	return invocation.Propagator{Options: []invocation.Option{
		invocation.WithAppName(cfg.AppName),
		invocation.WithLimits(cfg.UserData.Limits()),
		invocation.WithUserDataSwitch(a.switches.UserDataEnabled),
	}}
}

// Bind returns a binding intercepting matching calls with the agent's
// interceptors.
func (a *Agent) Bind(scope, loader string, matcher callsite.Matcher) dispatch.Binding {
	return dispatch.Binding{
		Scope:       scope,
		Loader:      loader,
		Matcher:     matcher,
		Interceptor: a.interceptor,
	}
}

// Invoke runs call under binding.
func (a *Agent) Invoke(ctx context.Context, binding dispatch.Binding, adv *advice.Advice, call dispatch.Call) (any, error) {
	return a.dispatcher.Invoke(ctx, binding, adv, call)
}

// Route decides whether a call on target is cut off to its shadow
// resource.
func (a *Agent) Route(ctx context.Context, family string, target any, method string, args ...any) (advice.CutOffResult, error) {
	return a.registry.Route(ctx, family, target, method, args...)
}

// Registry returns the shadow resource registry.
func (a *Agent) Registry() *shadow.Registry {
	return a.registry
}

// Mocks returns the active mocks.
func (a *Agent) Mocks() *mock.Store {
	return a.mocks
}

// CacheStats returns call site cache usage.
func (a *Agent) CacheStats() callsite.Stats {
	return a.cache.Stats()
}

// SyncObjects returns the store business consumers are recorded in.
func (a *Agent) SyncObjects() *consumer.SyncObjectStore {
	return a.objects
}

// Register returns the shadow consumer register of a consumer family.
func (a *Agent) Register(family string) (*consumer.Register, error) {
	reg, ok := a.registers[family]
	if !ok {
		return nil, errors.NotFoundf("consumer family %q", family)
	}
	return reg, nil
}

// PreChecker returns the precheck of a consumer family.
func (a *Agent) PreChecker(family string) (*consumer.PreChecker, error) {
	pc, ok := a.prechecks[family]
	if !ok {
		return nil, errors.NotFoundf("precheck for consumer family %q", family)
	}
	return pc, nil
}

// StartShadowConsumers starts the shadow consumers of a consumer family.
// When the family has a broker admin, only pairs whose shadow topic and
// group pass the precheck are started. The result holds an entry per
// business topic#group.
func (a *Agent) StartShadowConsumers(ctx context.Context, family string) (map[string]error, error) {
	reg, err := a.Register(family)
	if err != nil {
		return nil, errors.Trace(err)
	}
	pc, ok := a.prechecks[family]
	if !ok {
		return reg.StartShadowConsumers(ctx), nil
	}

	a.mu.RLock()
	consumerCfg := a.current.Consumer
	a.mu.RUnlock()

	results := pc.PreCheckWithRetry(ctx, reg.Live(), consumerCfg.PreCheckAttempts, consumerCfg.PreCheckDelay)
	var passed []string
	for key, err := range results {
		if err == nil {
			passed = append(passed, key)
		} else {
			a.config.Logger.Warningf("not starting shadow consumer for %s: %v", key, err)
		}
	}
	for key, err := range reg.StartShadowConsumersFor(ctx, passed) {
		results[key] = err
	}
	return results, nil
}

// Kill is part of the worker.Worker interface.
func (a *Agent) Kill() {
	a.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (a *Agent) Wait() error {
	return a.catacomb.Wait()
}
