// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package callsite

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/juju/errors"
)

// Method describes one method of a type.
type Method struct {
	Name     string
	Params   []string
	Results  []string
	Variadic bool
}

// Signature renders the method the way it would be declared.
func (m Method) Signature() string {
	return fmt.Sprintf("%s(%s) (%s)", m.Name, joinTypes(m.Params, m.Variadic), joinTypes(m.Results, false))
}

// Structure is the structural metadata of a type that interception
// decisions are made from.
type Structure struct {
	// Subject is the fully qualified type the structure was computed for.
	Subject string
	// Name and PkgPath identify the named type, looking through one level
	// of pointer indirection.
	Name    string
	PkgPath string
	Kind    reflect.Kind
	// Methods is the method set of the subject, sorted by name.
	Methods []Method

	index map[string]int
}

// Method returns the method called name.
func (s *Structure) Method(name string) (Method, bool) {
	i, ok := s.index[name]
	if !ok {
		return Method{}, false
	}
	return s.Methods[i], true
}

// HasMethod reports whether the subject has a method called name.
func (s *Structure) HasMethod(name string) bool {
	_, ok := s.index[name]
	return ok
}

// SubjectName returns the key under which the structure of t is cached.
func SubjectName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	named := t
	prefix := ""
	if t.Kind() == reflect.Pointer {
		named = t.Elem()
		prefix = "*"
	}
	if named.Name() == "" || named.PkgPath() == "" {
		return t.String()
	}
	return prefix + named.PkgPath() + "." + named.Name()
}

// Describe computes the structure of t directly, without any caching.
func Describe(t reflect.Type) (s *Structure, err error) {
	if t == nil {
		return nil, errors.NotValidf("nil type")
	}
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, errors.Errorf("describing %s: %v", t, r)
		}
	}()

	named := t
	if t.Kind() == reflect.Pointer {
		named = t.Elem()
	}
	s = &Structure{
		Subject: SubjectName(t),
		Name:    named.Name(),
		PkgPath: named.PkgPath(),
		Kind:    t.Kind(),
		index:   make(map[string]int, t.NumMethod()),
	}

	// Interface methods carry no receiver; concrete ones do.
	skip := 1
	if t.Kind() == reflect.Interface {
		skip = 0
	}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		mt := m.Type
		method := Method{
			Name:     m.Name,
			Variadic: mt.IsVariadic(),
		}
		for j := skip; j < mt.NumIn(); j++ {
			method.Params = append(method.Params, mt.In(j).String())
		}
		for j := 0; j < mt.NumOut(); j++ {
			method.Results = append(method.Results, mt.Out(j).String())
		}
		s.Methods = append(s.Methods, method)
	}
	sort.Slice(s.Methods, func(i, j int) bool {
		return s.Methods[i].Name < s.Methods[j].Name
	})
	for i, m := range s.Methods {
		s.index[m.Name] = i
	}
	return s, nil
}

func joinTypes(types []string, variadic bool) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ", "
		}
		if variadic && i == len(types)-1 && len(t) > 2 && t[:2] == "[]" {
			t = "..." + t[2:]
		}
		out += t
	}
	return out
}
