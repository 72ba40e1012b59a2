// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package callsite

import "strings"

// Matcher decides from the structure of a call site whether it is
// intercepted.
type Matcher interface {
	Match(*Structure) bool
}

// MatcherFunc adapts a function to a Matcher.
type MatcherFunc func(*Structure) bool

// Match implements Matcher.
func (f MatcherFunc) Match(s *Structure) bool {
	return f(s)
}

// MethodMatcher matches structures that have any of the named methods.
func MethodMatcher(names ...string) Matcher {
	return MatcherFunc(func(s *Structure) bool {
		for _, name := range names {
			if s.HasMethod(name) {
				return true
			}
		}
		return false
	})
}

// PackageMatcher matches structures declared in a package whose import path
// starts with prefix.
func PackageMatcher(prefix string) Matcher {
	return MatcherFunc(func(s *Structure) bool {
		return s.PkgPath != "" && strings.HasPrefix(s.PkgPath, prefix)
	})
}

// SubjectMatcher matches structures whose subject is one of subjects.
func SubjectMatcher(subjects ...string) Matcher {
	return MatcherFunc(func(s *Structure) bool {
		for _, subject := range subjects {
			if s.Subject == subject {
				return true
			}
		}
		return false
	})
}

// AllOf matches when every matcher matches.
func AllOf(matchers ...Matcher) Matcher {
	return MatcherFunc(func(s *Structure) bool {
		for _, m := range matchers {
			if !m.Match(s) {
				return false
			}
		}
		return true
	})
}

// Any matches every structure.
var Any Matcher = MatcherFunc(func(*Structure) bool { return true })
