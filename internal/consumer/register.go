// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package consumer

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
)

// ErrNotRunning is returned when stopping a shadow consumer that is not
// registered.
const ErrNotRunning = errors.ConstError("shadow consumer not running")

// RegisterConfig holds the dependencies of a Register.
type RegisterConfig struct {
	Store     *SyncObjectStore
	JoinPoint string
	Extract   ConfigExtractor
	Build     Builder
	Naming    Naming
	Logger    Logger
}

// Validate returns an error if the config cannot be used.
func (c RegisterConfig) Validate() error {
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.JoinPoint == "" {
		return errors.NotValidf("empty JoinPoint")
	}
	if c.Extract == nil {
		return errors.NotValidf("nil Extract")
	}
	if c.Build == nil {
		return errors.NotValidf("nil Build")
	}
	if c.Naming == nil {
		return errors.NotValidf("nil Naming")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Register tracks the shadow consumers of one consumer family, keyed by
// business topic#group.
type Register struct {
	config RegisterConfig

	mu      sync.Mutex
	shadows map[string]ConsumerExecute
}

// NewRegister returns an empty Register.
func NewRegister(config RegisterConfig) (*Register, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Register{
		config:  config,
		shadows: make(map[string]ConsumerExecute),
	}, nil
}

// StartShadowConsumers starts a shadow consumer for every live business
// consumer that does not already have a running one. The result holds an
// entry per business topic#group: nil when its shadow is running, or the
// reason it could not be started.
func (r *Register) StartShadowConsumers(ctx context.Context) map[string]error {
	configs := liveConfigs(r.config.Store, r.config.JoinPoint, r.config.Extract, r.config.Logger)
	return r.startAll(ctx, configs)
}

// StartShadowConsumersFor is StartShadowConsumers restricted to keys. A key
// without a live business consumer is reported as
// ErrBusinessConsumerMissing.
func (r *Register) StartShadowConsumersFor(ctx context.Context, keys []string) map[string]error {
	live := liveConfigs(r.config.Store, r.config.JoinPoint, r.config.Extract, r.config.Logger)
	configs := make(map[string]ConsumerConfig, len(keys))
	missing := make(map[string]error)
	for _, key := range keys {
		if business, ok := live[key]; ok {
			configs[key] = business
		} else {
			missing[key] = errors.Annotatef(ErrBusinessConsumerMissing, "%q", key)
		}
	}
	results := r.startAll(ctx, configs)
	for key, err := range missing {
		results[key] = err
	}
	return results
}

// Live returns the sorted topic#group keys of the live business consumers.
func (r *Register) Live() []string {
	configs := liveConfigs(r.config.Store, r.config.JoinPoint, r.config.Extract, r.config.Logger)
	keys := make([]string, 0, len(configs))
	for key := range configs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Register) startAll(ctx context.Context, configs map[string]ConsumerConfig) map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make(map[string]error, len(configs))
	for key, business := range configs {
		results[key] = r.start(ctx, key, business)
	}
	return results
}

func (r *Register) start(ctx context.Context, key string, business ConsumerConfig) error {
	if existing, ok := r.shadows[key]; ok {
		if existing.IsRunning() {
			return nil
		}
		// A stopped shadow is replaced.
		delete(r.shadows, key)
	}
	if err := business.Validate(); err != nil {
		return errors.Trace(err)
	}
	shadowCfg := ShadowConfig(business, r.config.Naming)
	execute, err := r.config.Build(ctx, shadowCfg)
	if err != nil {
		return errors.Annotatef(err, "building shadow consumer %q", shadowCfg.Key())
	}
	if err := execute.Start(ctx); err != nil {
		return errors.Annotatef(err, "starting shadow consumer %q", shadowCfg.Key())
	}
	r.shadows[key] = execute
	r.config.Logger.Infof("started shadow consumer %q for %q", shadowCfg.Key(), key)
	return nil
}

// Stop stops the shadow consumer of the business topic#group key.
func (r *Register) Stop(ctx context.Context, key string) error {
	r.mu.Lock()
	execute, ok := r.shadows[key]
	delete(r.shadows, key)
	r.mu.Unlock()

	if !ok {
		return errors.Annotatef(ErrNotRunning, "%q", key)
	}
	if err := execute.Stop(ctx); err != nil {
		return errors.Annotatef(err, "stopping shadow consumer for %q", key)
	}
	r.config.Logger.Infof("stopped shadow consumer for %q", key)
	return nil
}

// StopAll stops every shadow consumer, returning the first error.
func (r *Register) StopAll(ctx context.Context) error {
	r.mu.Lock()
	shadows := r.shadows
	r.shadows = make(map[string]ConsumerExecute)
	r.mu.Unlock()

	var first error
	for key, execute := range shadows {
		if err := execute.Stop(ctx); err != nil {
			r.config.Logger.Errorf("stopping shadow consumer for %q: %v", key, err)
			if first == nil {
				first = errors.Annotatef(err, "stopping shadow consumer for %q", key)
			}
		}
	}
	return first
}

// Running returns the sorted business keys whose shadow consumer is running.
func (r *Register) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for key, execute := range r.shadows {
		if execute.IsRunning() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Shadow returns the shadow consumer of the business topic#group key.
func (r *Register) Shadow(key string) (ConsumerExecute, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	execute, ok := r.shadows[key]
	return execute, ok
}
