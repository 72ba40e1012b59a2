// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package consumer runs shadow counterparts of long-lived business
// message consumers.
//
// Business consumers are recorded in a SyncObjectStore when they start.
// A Register clones the configuration of each live business consumer under
// a Naming transform and starts one shadow consumer per topic and group,
// independently of the business consumer's lifecycle. A PreChecker
// verifies that the shadow topics and groups exist before that happens.
package consumer

import (
	"context"
	"strings"

	"github.com/juju/errors"
	"github.com/mohae/deepcopy"
)

// DefaultPrefix is prepended to topics and groups to name their shadows.
const DefaultPrefix = "PT_"

// ConsumerConfig is the connection configuration of a consumer.
type ConsumerConfig struct {
	Topic             string
	Group             string
	Bootstrap         []string
	KeyDeserializer   string
	ValueDeserializer string
	ClientID          string

	// Auth holds credentials and other security settings.
	Auth map[string]string

	// Properties holds the remaining client settings.
	Properties map[string]string
}

// Key returns the topic#group key of the consumer.
func (c ConsumerConfig) Key() string {
	return Key(c.Topic, c.Group)
}

// Clone returns a deep copy of c.
func (c ConsumerConfig) Clone() ConsumerConfig {
	return deepcopy.Copy(c).(ConsumerConfig)
}

// Validate returns an error if c cannot be used to start a consumer.
func (c ConsumerConfig) Validate() error {
	if c.Topic == "" {
		return errors.NotValidf("empty topic")
	}
	if c.Group == "" {
		return errors.NotValidf("empty group for topic %q", c.Topic)
	}
	if len(c.Bootstrap) == 0 {
		return errors.NotValidf("empty bootstrap servers for %q", c.Key())
	}
	return nil
}

// Key joins a topic and group into a topic#group key.
func Key(topic, group string) string {
	return topic + "#" + group
}

// SplitKey splits a topic#group key.
func SplitKey(key string) (topic, group string, err error) {
	topic, group, ok := strings.Cut(key, "#")
	if !ok || topic == "" || group == "" {
		return "", "", errors.NotValidf("topic#group key %q", key)
	}
	return topic, group, nil
}

// Naming names shadow topics and groups.
type Naming interface {
	ShadowTopic(topic string) string
	ShadowGroup(group string) string
}

// PrefixNaming names shadows by prepending a prefix. Names that already
// carry the prefix are returned unchanged.
type PrefixNaming struct {
	Prefix string
}

// ShadowTopic is part of the Naming interface.
func (n PrefixNaming) ShadowTopic(topic string) string {
	return n.shadow(topic)
}

// ShadowGroup is part of the Naming interface.
func (n PrefixNaming) ShadowGroup(group string) string {
	return n.shadow(group)
}

func (n PrefixNaming) shadow(name string) string {
	if strings.HasPrefix(name, n.Prefix) {
		return name
	}
	return n.Prefix + name
}

// DefaultNaming uses DefaultPrefix.
var DefaultNaming Naming = PrefixNaming{Prefix: DefaultPrefix}

// ShadowConfig returns the configuration of the shadow of a business
// consumer.
func ShadowConfig(business ConsumerConfig, naming Naming) ConsumerConfig {
	cfg := business.Clone()
	cfg.Topic = naming.ShadowTopic(business.Topic)
	cfg.Group = naming.ShadowGroup(business.Group)
	if cfg.ClientID != "" {
		cfg.ClientID = naming.ShadowGroup(cfg.ClientID)
	}
	return cfg
}

// ConsumerExecute is a running shadow consumer.
type ConsumerExecute interface {
	// ShadowTarget returns the underlying shadow consumer.
	ShadowTarget() any
	Start(ctx context.Context) error
	IsRunning() bool
	Stop(ctx context.Context) error
}

// ConfigExtractor reads the configuration of the business consumers behind
// a record. A consumer subscribed to several topics yields one
// configuration per topic.
type ConfigExtractor func(rec *SyncObjectRecord) ([]ConsumerConfig, error)

// Builder creates a shadow consumer. It must not start it.
type Builder func(ctx context.Context, shadow ConsumerConfig) (ConsumerExecute, error)

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// liveConfigs returns the configurations of the live business consumers
// recorded at joinPoint, keyed by topic#group.
func liveConfigs(store *SyncObjectStore, joinPoint string, extract ConfigExtractor, logger Logger) map[string]ConsumerConfig {
	configs := make(map[string]ConsumerConfig)
	for _, rec := range store.Records(joinPoint) {
		extracted, err := extract(rec)
		if err != nil {
			logger.Warningf("reading consumer configuration at %s: %v", joinPoint, err)
			continue
		}
		for _, cfg := range extracted {
			if _, ok := configs[cfg.Key()]; !ok {
				configs[cfg.Key()] = cfg
			}
		}
	}
	return configs
}
