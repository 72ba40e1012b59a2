// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

// Attributes is an insertion ordered string map. The zero value is ready to
// use.
type Attributes struct {
	keys   []string
	values map[string]string
}

// Len returns the number of entries.
func (a *Attributes) Len() int {
	return len(a.keys)
}

// Get returns the value for key and whether it was present.
func (a *Attributes) Get(key string) (string, bool) {
	if a.values == nil {
		return "", false
	}
	v, ok := a.values[key]
	return v, ok
}

// Put sets key to value, returning the previous value if there was one.
// Updating an existing key keeps its original position.
func (a *Attributes) Put(key, value string) (string, bool) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	old, ok := a.values[key]
	if !ok {
		a.keys = append(a.keys, key)
	}
	a.values[key] = value
	return old, ok
}

// Remove deletes key, returning the removed value if there was one.
func (a *Attributes) Remove(key string) (string, bool) {
	old, ok := a.values[key]
	if !ok {
		return "", false
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
	return old, true
}

// Keys returns a copy of the keys in insertion order.
func (a *Attributes) Keys() []string {
	keys := make([]string, len(a.keys))
	copy(keys, a.keys)
	return keys
}

// Each calls fn for every entry in insertion order.
func (a *Attributes) Each(fn func(key, value string)) {
	for _, k := range a.keys {
		fn(k, a.values[k])
	}
}

// Map returns an unordered copy of the entries.
func (a *Attributes) Map() map[string]string {
	m := make(map[string]string, len(a.keys))
	for _, k := range a.keys {
		m[k] = a.values[k]
	}
	return m
}

// Clone returns a deep copy.
func (a *Attributes) Clone() Attributes {
	var c Attributes
	a.Each(func(k, v string) {
		c.Put(k, v)
	})
	return c
}

// Clear removes every entry.
func (a *Attributes) Clear() {
	a.keys = nil
	a.values = nil
}
