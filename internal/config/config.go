// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config reads the shadow agent configuration document.
package config

import (
	"os"
	"time"

	"github.com/juju/errors"
	goyaml "gopkg.in/yaml.v2"

	"github.com/juju/shadow/core/invocation"
	"github.com/juju/shadow/internal/callsite"
	"github.com/juju/shadow/internal/consumer"
	"github.com/juju/shadow/internal/shadow/sqldb"
)

// Config is the agent configuration document.
type Config struct {
	AppName     string            `yaml:"app-name"`
	ClusterTest ClusterTestConfig `yaml:"cluster-test"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	UserData    UserDataConfig    `yaml:"user-data"`
	Cache       CacheConfig       `yaml:"callsite-cache"`
	Consumer    ConsumerConfig    `yaml:"consumer"`
	Tracing     TracingConfig     `yaml:"tracing"`

	Datasources []sqldb.Mapping `yaml:"datasources"`
	Mocks       []MockConfig    `yaml:"mocks"`
}

// ClusterTestConfig controls shadow routing.
type ClusterTestConfig struct {
	// Families lists the resource families whose cluster-test traffic is
	// routed to shadow resources.
	Families []string `yaml:"families"`
}

// SamplingConfig controls trace sampling.
type SamplingConfig struct {
	Interval            int  `yaml:"interval"`
	ClusterTestInterval int  `yaml:"cluster-test-interval"`
	UseTraceIDInterval  bool `yaml:"use-trace-id-interval"`
}

// Invocation returns the sampling configuration of invocation contexts.
func (c SamplingConfig) Invocation() invocation.SamplingConfig {
	return invocation.SamplingConfig{
		Interval:            c.Interval,
		ClusterTestInterval: c.ClusterTestInterval,
		UseTraceIDInterval:  c.UseTraceIDInterval,
	}
}

// UserDataConfig controls propagated user data.
type UserDataConfig struct {
	Enabled      *bool `yaml:"enabled"`
	MaxKeySize   int   `yaml:"max-key-size"`
	MaxValueSize int   `yaml:"max-value-size"`
}

// Limits returns the attribute limits of invocation contexts.
func (c UserDataConfig) Limits() invocation.Limits {
	return invocation.Limits{MaxKeySize: c.MaxKeySize, MaxValueSize: c.MaxValueSize}
}

// CacheConfig controls the call site cache.
type CacheConfig struct {
	Quiescence    time.Duration `yaml:"quiescence"`
	CheckInterval time.Duration `yaml:"check-interval"`
}

// ConsumerConfig controls shadow consumers.
type ConsumerConfig struct {
	Prefix           string        `yaml:"prefix"`
	AdminTimeout     time.Duration `yaml:"admin-timeout"`
	PreCheckAttempts int           `yaml:"precheck-attempts"`
	PreCheckDelay    time.Duration `yaml:"precheck-delay"`
}

// Naming returns the shadow naming transform.
func (c ConsumerConfig) Naming() consumer.Naming {
	return consumer.PrefixNaming{Prefix: c.Prefix}
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Endpoint           string `yaml:"endpoint"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify"`
	StackTraces        bool   `yaml:"stack-traces"`
}

// MockConfig is a canned result for cluster-test calls of one method.
type MockConfig struct {
	Target string `yaml:"target"`
	Method string `yaml:"method"`
	Return string `yaml:"return,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Default returns the configuration used for unset values.
func Default() Config {
	enabled := true
	return Config{
		UserData: UserDataConfig{
			Enabled:      &enabled,
			MaxKeySize:   invocation.DefaultLimits.MaxKeySize,
			MaxValueSize: invocation.DefaultLimits.MaxValueSize,
		},
		Cache: CacheConfig{
			Quiescence:    callsite.DefaultQuiescence,
			CheckInterval: callsite.DefaultCheckInterval,
		},
		Consumer: ConsumerConfig{
			Prefix:           consumer.DefaultPrefix,
			AdminTimeout:     consumer.DefaultAdminTimeout,
			PreCheckAttempts: 3,
			PreCheckDelay:    10 * time.Second,
		},
	}
}

// UserDataEnabled reports whether user data is propagated.
func (c Config) UserDataEnabled() bool {
	return c.UserData.Enabled == nil || *c.UserData.Enabled
}

// Validate returns an error if the configuration cannot be used.
func (c Config) Validate() error {
	if c.Sampling.Interval < 0 || c.Sampling.ClusterTestInterval < 0 {
		return errors.NotValidf("negative sampling interval")
	}
	if c.UserData.MaxKeySize <= 0 || c.UserData.MaxValueSize <= 0 {
		return errors.NotValidf("non-positive user data limits")
	}
	if c.Cache.Quiescence <= 0 || c.Cache.CheckInterval <= 0 {
		return errors.NotValidf("non-positive call site cache windows")
	}
	if c.Consumer.Prefix == "" {
		return errors.NotValidf("empty consumer prefix")
	}
	if c.Consumer.AdminTimeout <= 0 {
		return errors.NotValidf("non-positive admin timeout")
	}
	if c.Consumer.PreCheckAttempts <= 0 {
		return errors.NotValidf("non-positive precheck attempts")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.NotValidf("tracing enabled without endpoint")
	}
	for _, m := range c.Datasources {
		if err := m.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	for _, m := range c.Mocks {
		if m.Target == "" || m.Method == "" {
			return errors.NotValidf("mock %s#%s", m.Target, m.Method)
		}
	}
	return nil
}

// Parse reads a configuration document, filling unset values from Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := goyaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, errors.Annotate(err, "parsing agent config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Read parses the configuration document at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading agent config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "agent config %q", path)
	}
	return cfg, nil
}
