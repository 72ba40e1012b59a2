// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package consumer

import (
	"slices"
	"sync"
	"weak"
)

// JoinPoint names the call at which live objects are recorded.
func JoinPoint(typeName, method string) string {
	return typeName + "#" + method
}

// SyncObjectRecord captures a live business object at a join point, along
// with the call that produced it. A weakly held target does not keep the
// object alive.
type SyncObjectRecord struct {
	method string
	args   []any
	ret    any

	weak   bool
	target func() any
}

// NewRecord returns a record holding target strongly.
func NewRecord(target any, method string, args []any, ret any) *SyncObjectRecord {
	return &SyncObjectRecord{
		method: method,
		args:   args,
		ret:    ret,
		target: func() any { return target },
	}
}

// NewWeakRecord returns a record holding target weakly. The record's args
// and return value are held strongly, so they must not reference target.
func NewWeakRecord[T any](target *T, method string, args []any, ret any) *SyncObjectRecord {
	p := weak.Make(target)
	return &SyncObjectRecord{
		method: method,
		args:   args,
		ret:    ret,
		weak:   true,
		target: func() any {
			if v := p.Value(); v != nil {
				return v
			}
			return nil
		},
	}
}

// Target returns the recorded object, or false once a weakly held object
// has been collected.
func (r *SyncObjectRecord) Target() (any, bool) {
	v := r.target()
	return v, v != nil
}

// IsWeak reports whether the target is held weakly.
func (r *SyncObjectRecord) IsWeak() bool {
	return r.weak
}

// Method returns the recorded method name.
func (r *SyncObjectRecord) Method() string {
	return r.method
}

// Args returns the recorded call arguments.
func (r *SyncObjectRecord) Args() []any {
	return r.args
}

// Return returns the recorded return value.
func (r *SyncObjectRecord) Return() any {
	return r.ret
}

// SyncObjectStore holds records by join point.
type SyncObjectStore struct {
	mu      sync.Mutex
	records map[string][]*SyncObjectRecord
}

// NewSyncObjectStore returns an empty store.
func NewSyncObjectStore() *SyncObjectStore {
	return &SyncObjectStore{records: make(map[string][]*SyncObjectRecord)}
}

// Add records rec at joinPoint.
func (s *SyncObjectStore) Add(joinPoint string, rec *SyncObjectRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[joinPoint] = append(s.records[joinPoint], rec)
}

// Records returns the live records at joinPoint, dropping records whose
// target has been collected.
func (s *SyncObjectStore) Records(joinPoint string) []*SyncObjectRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := slices.DeleteFunc(s.records[joinPoint], func(r *SyncObjectRecord) bool {
		_, ok := r.Target()
		return !ok
	})
	if len(live) == 0 {
		delete(s.records, joinPoint)
		return nil
	}
	s.records[joinPoint] = live
	return slices.Clone(live)
}

// Remove drops every record at joinPoint whose target is target.
func (s *SyncObjectStore) Remove(joinPoint string, target any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[joinPoint] = slices.DeleteFunc(s.records[joinPoint], func(r *SyncObjectRecord) bool {
		v, ok := r.Target()
		return !ok || v == target
	})
}

// Clear drops every record.
func (s *SyncObjectStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string][]*SyncObjectRecord)
}
