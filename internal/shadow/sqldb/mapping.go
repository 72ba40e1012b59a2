// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package sqldb

import (
	"github.com/juju/errors"
	goyaml "gopkg.in/yaml.v2"
)

// Mapping names the shadow database for a business database.
type Mapping struct {
	// Business is the data source name of the business database.
	Business string `yaml:"business"`

	// Shadow is the data source name of the shadow database.
	Shadow string `yaml:"shadow"`

	// Driver overrides the driver of the business database.
	Driver string `yaml:"driver,omitempty"`

	MaxOpenConns int `yaml:"max-open-conns,omitempty"`
}

// Validate returns an error if the mapping is incomplete.
func (m Mapping) Validate() error {
	if m.Business == "" {
		return errors.NotValidf("empty business data source")
	}
	if m.Shadow == "" {
		return errors.NotValidf("empty shadow data source for %q", m.Business)
	}
	if m.Shadow == m.Business {
		return errors.NotValidf("shadow data source identical to business data source %q", m.Business)
	}
	if m.MaxOpenConns < 0 {
		return errors.NotValidf("negative max-open-conns for %q", m.Business)
	}
	return nil
}

type mappingsDoc struct {
	Datasources []Mapping `yaml:"datasources"`
}

// ParseMappings reads a YAML document with a top level datasources list.
func ParseMappings(data []byte) ([]Mapping, error) {
	var doc mappingsDoc
	if err := goyaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, errors.Annotate(err, "parsing datasource mappings")
	}
	for _, m := range doc.Datasources {
		if err := m.Validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return doc.Datasources, nil
}
