// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shadow

import (
	"context"
	"reflect"
	"strings"

	"github.com/juju/errors"
)

// Handler executes an operation against a shadow resource.
type Handler func(ctx context.Context, shadow any, args []any) (any, error)

// Operation maps a business method and argument shape onto a handler.
type Operation struct {
	Name string

	// Args is the argument type pattern. A nil entry accepts any argument.
	Args []reflect.Type

	// Variadic makes the last entry of Args match zero or more trailing
	// arguments.
	Variadic bool

	Handler Handler
}

// TypeOf returns the reflect.Type of T, which may be an interface.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (op Operation) matches(method string, args []any) bool {
	if op.Name != method || op.Handler == nil {
		return false
	}
	n := len(op.Args)
	if op.Variadic {
		if n == 0 || len(args) < n-1 {
			return false
		}
	} else if len(args) != n {
		return false
	}
	for i, arg := range args {
		pattern := op.Args[min(i, n-1)]
		if !accepts(pattern, arg) {
			return false
		}
	}
	return true
}

func accepts(pattern reflect.Type, arg any) bool {
	if pattern == nil {
		return true
	}
	if arg == nil {
		return nillable(pattern)
	}
	return reflect.TypeOf(arg).AssignableTo(pattern)
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

// shapeKey identifies a call shape: the shadow type, method and runtime
// argument types.
func shapeKey(family string, shadow any, method string, args []any) string {
	var b strings.Builder
	b.WriteString(family)
	b.WriteByte('|')
	b.WriteString(typeName(shadow))
	b.WriteByte('|')
	b.WriteString(method)
	for _, t := range argTypeNames(args) {
		b.WriteByte('|')
		b.WriteString(t)
	}
	return b.String()
}

func argTypeNames(args []any) []string {
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = typeName(arg)
	}
	return names
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// reflectHandler returns a handler that calls the exported method called
// name on shadow, or false if shadow has no such method accepting args.
func reflectHandler(shadow any, name string, args []any) (Handler, bool) {
	if shadow == nil {
		return nil, false
	}
	m, ok := reflect.TypeOf(shadow).MethodByName(name)
	if !ok {
		return nil, false
	}
	// The receiver is the first input of a method obtained from a type.
	mt := m.Type
	params := make([]reflect.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		params = append(params, mt.In(i))
	}
	op := Operation{Name: name, Args: params, Variadic: mt.IsVariadic(), Handler: callMethod(name)}
	if op.Variadic {
		op.Args[len(op.Args)-1] = op.Args[len(op.Args)-1].Elem()
	}
	if !op.matches(name, args) {
		return nil, false
	}
	return op.Handler, true
}

func callMethod(name string) Handler {
	return func(_ context.Context, shadow any, args []any) (result any, err error) {
		method := reflect.ValueOf(shadow).MethodByName(name)
		mt := method.Type()
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			if arg != nil {
				in[i] = reflect.ValueOf(arg)
				continue
			}
			pt := mt.In(min(i, mt.NumIn()-1))
			if mt.IsVariadic() && i >= mt.NumIn()-1 {
				pt = pt.Elem()
			}
			in[i] = reflect.Zero(pt)
		}
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, errors.Errorf("calling %s on shadow %T: %v", name, shadow, r)
			}
		}()
		return unpackResults(method.Call(in))
	}
}

var errorType = TypeOf[error]()

// unpackResults turns method results into a value and an error. A trailing
// error result becomes the error; a single remaining result is returned as
// is and several are returned as a []any.
func unpackResults(out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	}
	values := make([]any, len(out))
	for i, v := range out {
		values[i] = v.Interface()
	}
	return values, err
}
