// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqldb

import (
	"context"
	"database/sql"
	"reflect"

	"github.com/juju/errors"

	"github.com/juju/shadow/internal/shadow"
)

// FamilyName is the name of the database family.
const FamilyName = "sql"

// Factory opens shadow databases from datasource mappings.
type Factory struct {
	mappings map[string]Mapping
}

// NewFactory returns a Factory for the mappings.
func NewFactory(mappings []Mapping) (*Factory, error) {
	byBusiness := make(map[string]Mapping, len(mappings))
	for _, m := range mappings {
		if err := m.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
		if _, ok := byBusiness[m.Business]; ok {
			return nil, errors.NotValidf("duplicate mapping for %q", m.Business)
		}
		byBusiness[m.Business] = m
	}
	return &Factory{mappings: byBusiness}, nil
}

// ResourceKey is part of the shadow.Factory interface.
func (f *Factory) ResourceKey(target any) (string, error) {
	db, ok := target.(*DB)
	if !ok {
		return "", errors.NotValidf("database target %T", target)
	}
	return db.dsn, nil
}

// CreateShadowResource is part of the shadow.Factory interface.
func (f *Factory) CreateShadowResource(ctx context.Context, target any) (any, error) {
	db, ok := target.(*DB)
	if !ok {
		return nil, errors.NotValidf("database target %T", target)
	}
	m, ok := f.mappings[db.dsn]
	if !ok {
		return nil, nil
	}
	driver := m.Driver
	if driver == "" {
		driver = db.driver
	}
	pool, err := sql.Open(driver, m.Shadow)
	if err != nil {
		return nil, errors.Annotatef(err, "opening shadow database")
	}
	if m.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(m.MaxOpenConns)
	}
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, errors.Annotatef(err, "connecting to shadow database")
	}
	return &DB{DB: pool, driver: driver, dsn: m.Shadow, shadow: true}, nil
}

// NeedsRouting is part of the shadow.Factory interface.
func (f *Factory) NeedsRouting(target any) bool {
	db, ok := target.(*DB)
	return ok && !db.shadow
}

var (
	contextType = shadow.TypeOf[context.Context]()
	stringType  = shadow.TypeOf[string]()
)

// Family returns the database shadow family. Calls are routed with the
// database/sql method name and its arguments, for example
//
//	registry.Route(ctx, sqldb.FamilyName, db, "ExecContext", ctx, query, arg)
func Family(f *Factory) shadow.Family {
	return shadow.Family{
		Name:    FamilyName,
		Factory: f,
		Operations: []shadow.Operation{{
			Name:     "ExecContext",
			Args:     []reflect.Type{contextType, stringType, nil},
			Variadic: true,
			Handler: func(_ context.Context, sh any, args []any) (any, error) {
				return sh.(*DB).ExecContext(args[0].(context.Context), args[1].(string), args[2:]...)
			},
		}, {
			Name:     "QueryContext",
			Args:     []reflect.Type{contextType, stringType, nil},
			Variadic: true,
			Handler: func(_ context.Context, sh any, args []any) (any, error) {
				return sh.(*DB).QueryContext(args[0].(context.Context), args[1].(string), args[2:]...)
			},
		}, {
			Name:     "QueryRowContext",
			Args:     []reflect.Type{contextType, stringType, nil},
			Variadic: true,
			Handler: func(_ context.Context, sh any, args []any) (any, error) {
				return sh.(*DB).QueryRowContext(args[0].(context.Context), args[1].(string), args[2:]...), nil
			},
		}, {
			Name: "PingContext",
			Args: []reflect.Type{contextType},
			Handler: func(_ context.Context, sh any, args []any) (any, error) {
				return nil, sh.(*DB).PingContext(args[0].(context.Context))
			},
		}},
	}
}
