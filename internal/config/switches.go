// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"sync/atomic"

	"github.com/juju/collections/set"
)

// Switches are the runtime toggles of the agent. They can be updated while
// calls are being routed.
type Switches struct {
	families atomic.Pointer[set.Strings]
	userData atomic.Bool
}

// NewSwitches returns switches set from cfg.
func NewSwitches(cfg Config) *Switches {
	s := &Switches{}
	s.Update(cfg)
	return s
}

// Update replaces every switch with the values in cfg.
func (s *Switches) Update(cfg Config) {
	families := set.NewStrings(cfg.ClusterTest.Families...)
	s.families.Store(&families)
	s.userData.Store(cfg.UserDataEnabled())
}

// ShadowEnabled reports whether cluster-test traffic of family is routed to
// shadow resources.
func (s *Switches) ShadowEnabled(family string) bool {
	return s.families.Load().Contains(family)
}

// SetShadowEnabled turns shadow routing of family on or off.
func (s *Switches) SetShadowEnabled(family string, enabled bool) {
	for {
		old := s.families.Load()
		next := set.NewStrings(old.Values()...)
		if enabled {
			next.Add(family)
		} else {
			next.Remove(family)
		}
		if s.families.CompareAndSwap(old, &next) {
			return
		}
	}
}

// UserDataEnabled reports whether user data is propagated.
func (s *Switches) UserDataEnabled() bool {
	return s.userData.Load()
}
