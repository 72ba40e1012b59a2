// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package callsite

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultQuiescence is how long the cache may go without a lookup
	// before it is cleared and switched off.
	DefaultQuiescence = 5 * time.Minute

	// DefaultCheckInterval is how often quiescence is checked.
	DefaultCheckInterval = time.Minute
)

// Logger represents the logging methods called.
type Logger interface {
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// Config holds the dependencies and tunables of a Cache.
type Config struct {
	Clock         clock.Clock
	Logger        Logger
	Quiescence    time.Duration
	CheckInterval time.Duration
}

// Validate returns an error if the config cannot be used to start a Cache.
func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Quiescence <= 0 {
		return errors.NotValidf("non-positive Quiescence")
	}
	if c.CheckInterval <= 0 {
		return errors.NotValidf("non-positive CheckInterval")
	}
	return nil
}

// Stats is a point in time view of cache usage.
type Stats struct {
	Enabled bool
	Size    int
	Hits    uint64
	Misses  uint64
}

// Cache memoises type structures per (subject, loader). A disabled cache
// computes every structure directly, so callers observe the same results
// whether or not it is enabled.
//
// The cache is also a worker: once no lookups have been made for the
// configured quiescence window it clears itself, disables caching and
// stops.
type Cache struct {
	catacomb catacomb.Catacomb
	config   Config

	mu    sync.RWMutex
	table map[string]map[string]*Structure

	group      singleflight.Group
	enabled    atomic.Bool
	lastAccess atomic.Int64
	hits       atomic.Uint64
	misses     atomic.Uint64
}

// NewCache returns an enabled cache and starts its quiescence check.
func NewCache(config Config) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	c := &Cache{
		config: config,
		table:  make(map[string]map[string]*Structure),
	}
	c.enabled.Store(true)
	c.lastAccess.Store(config.Clock.Now().UnixNano())

	if err := catacomb.Invoke(catacomb.Plan{
		Site: &c.catacomb,
		Work: c.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return c, nil
}

// Structure returns the structure of t as seen by loader.
func (c *Cache) Structure(t reflect.Type, loader string) (*Structure, error) {
	c.lastAccess.Store(c.config.Clock.Now().UnixNano())
	if t == nil {
		return nil, errors.NotValidf("nil type")
	}
	if !c.enabled.Load() {
		return Describe(t)
	}

	subject := SubjectName(t)
	c.mu.RLock()
	s, ok := c.table[subject][loader]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return s, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(subject+"\x00"+loader, func() (any, error) {
		s, err := Describe(t)
		if err != nil {
			return nil, err
		}
		c.store(subject, loader, s)
		return s, nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return v.(*Structure), nil
}

func (c *Cache) store(subject, loader string, s *Structure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Disable may have run since the lookup started.
	if !c.enabled.Load() {
		return
	}
	byLoader, ok := c.table[subject]
	if !ok {
		byLoader = make(map[string]*Structure)
		c.table[subject] = byLoader
	}
	byLoader[loader] = s
}

// Enabled reports whether lookups are currently being memoised.
func (c *Cache) Enabled() bool {
	return c.enabled.Load()
}

// Disable clears the cache and stops memoising. It cannot be undone.
func (c *Cache) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled.Swap(false) {
		return
	}
	c.table = make(map[string]map[string]*Structure)
}

// Stats returns the current usage counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	size := 0
	for _, byLoader := range c.table {
		size += len(byLoader)
	}
	c.mu.RUnlock()
	return Stats{
		Enabled: c.enabled.Load(),
		Size:    size,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Kill is part of the worker.Worker interface.
func (c *Cache) Kill() {
	c.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (c *Cache) Wait() error {
	return c.catacomb.Wait()
}

func (c *Cache) loop() error {
	timer := c.config.Clock.NewTimer(c.config.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-c.catacomb.Dying():
			return c.catacomb.ErrDying()
		case <-timer.Chan():
			if !c.enabled.Load() {
				return nil
			}
			idle := c.config.Clock.Now().Sub(time.Unix(0, c.lastAccess.Load()))
			if idle >= c.config.Quiescence {
				c.Disable()
				c.config.Logger.Infof("call site cache idle for %v, disabled", idle)
				return nil
			}
			c.config.Logger.Debugf("call site cache idle for %v", idle)
			timer.Reset(c.config.CheckInterval)
		}
	}
}
