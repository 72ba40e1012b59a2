// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package mock short-circuits cluster-test calls with canned results.
package mock

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/juju/errors"

	"github.com/juju/shadow/core/advice"
	"github.com/juju/shadow/internal/callsite"
	"github.com/juju/shadow/internal/dispatch"
)

// Mock is a canned result for calls of one method.
type Mock struct {
	// Target is the fully qualified type of the receiver, as returned by
	// callsite.SubjectName.
	Target string
	Method string

	// Return is returned when Err is nil.
	Return any
	Err    error
}

// Key returns the Type#Method key of the mock.
func (m Mock) Key() string {
	return Key(m.Target, m.Method)
}

// Key joins a target type and method.
func Key(target, method string) string {
	return target + "#" + method
}

// Store holds the active mocks.
type Store struct {
	mu    sync.RWMutex
	mocks map[string]Mock
}

// NewStore returns a Store holding mocks.
func NewStore(mocks ...Mock) (*Store, error) {
	s := &Store{
		mocks: make(map[string]Mock),
	}
	if err := s.Replace(mocks); err != nil {
		return nil, errors.Trace(err)
	}
	return s, nil
}

// Replace swaps the active mocks for mocks.
func (s *Store) Replace(mocks []Mock) error {
	byKey := make(map[string]Mock, len(mocks))
	for _, m := range mocks {
		if m.Target == "" || m.Method == "" {
			return errors.NotValidf("mock %q", m.Key())
		}
		if _, ok := byKey[m.Key()]; ok {
			return errors.NotValidf("duplicate mock %q", m.Key())
		}
		byKey[m.Key()] = m
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mocks = byKey
	return nil
}

// Lookup returns the mock for key.
func (s *Store) Lookup(key string) (Mock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mocks[key]
	return m, ok
}

// Keys returns the sorted keys of the active mocks.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.mocks))
}

// Interceptor returns canned results for cluster-test calls that have a
// mock. Business traffic is never mocked.
type Interceptor struct {
	dispatch.NopInterceptor

	store *Store
}

// NewInterceptor returns an Interceptor backed by store.
func NewInterceptor(store *Store) *Interceptor {
	return &Interceptor{store: store}
}

// BeforeLast is part of the dispatch.Interceptor interface.
func (i *Interceptor) BeforeLast(_ context.Context, adv *advice.Advice) (advice.ControlSignal, error) {
	if !adv.IsClusterTest() {
		return advice.Continue(), nil
	}
	key := Key(callsite.SubjectName(reflect.TypeOf(adv.Target())), adv.Method())
	m, ok := i.store.Lookup(key)
	if !ok {
		return advice.Continue(), nil
	}
	adv.Mark(Marker)
	if m.Err != nil {
		return advice.ThrowImmediately(m.Err), nil
	}
	return advice.ReturnImmediately(m.Return), nil
}

// Marker tags advice whose call was mocked.
const Marker = "mocked"
