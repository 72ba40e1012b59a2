// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sqldb shadows database/sql connection pools.
package sqldb

import (
	"database/sql"

	"github.com/juju/errors"
)

// DB is a database/sql pool that remembers how it was opened, so that a
// shadow counterpart can be opened from its configuration.
type DB struct {
	*sql.DB

	driver string
	dsn    string
	shadow bool
}

// Open opens a business database.
func Open(driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %s database", driver)
	}
	return &DB{DB: db, driver: driver, dsn: dsn}, nil
}

// Driver returns the driver name the pool was opened with.
func (db *DB) Driver() string {
	return db.driver
}

// DSN returns the data source name the pool was opened with.
func (db *DB) DSN() string {
	return db.dsn
}

// IsShadow reports whether the pool is a shadow database.
func (db *DB) IsShadow() bool {
	return db.shadow
}
