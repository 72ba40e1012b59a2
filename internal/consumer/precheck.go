// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package consumer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"golang.org/x/sync/errgroup"
)

const (
	// ErrBusinessConsumerMissing means no live business consumer reads
	// the topic with the group.
	ErrBusinessConsumerMissing = errors.ConstError("business consumer not found")

	// ErrShadowTopicMissing means the shadow topic does not exist.
	ErrShadowTopicMissing = errors.ConstError("shadow topic does not exist")

	// ErrShadowGroupMissing means the shadow consumer group does not exist.
	ErrShadowGroupMissing = errors.ConstError("shadow consumer group does not exist")
)

// DefaultAdminTimeout bounds each broker administration call.
const DefaultAdminTimeout = 3 * time.Second

// BrokerAdmin queries a broker's administration API.
type BrokerAdmin interface {
	TopicExists(ctx context.Context, topic string) (bool, error)
	GroupExists(ctx context.Context, group string) (bool, error)
}

// PreCheckerConfig holds the dependencies of a PreChecker.
type PreCheckerConfig struct {
	Admin     BrokerAdmin
	Store     *SyncObjectStore
	JoinPoint string
	Extract   ConfigExtractor
	Naming    Naming
	Clock     clock.Clock
	Logger    Logger

	// Timeout bounds each administration call.
	Timeout time.Duration

	// Concurrency limits the pairs checked at once. Zero means no limit.
	Concurrency int
}

// Validate returns an error if the config cannot be used.
func (c PreCheckerConfig) Validate() error {
	if c.Admin == nil {
		return errors.NotValidf("nil Admin")
	}
	if c.Store == nil {
		return errors.NotValidf("nil Store")
	}
	if c.JoinPoint == "" {
		return errors.NotValidf("empty JoinPoint")
	}
	if c.Extract == nil {
		return errors.NotValidf("nil Extract")
	}
	if c.Naming == nil {
		return errors.NotValidf("nil Naming")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.Timeout <= 0 {
		return errors.NotValidf("non-positive Timeout")
	}
	if c.Concurrency < 0 {
		return errors.NotValidf("negative Concurrency")
	}
	return nil
}

// PreChecker verifies that shadow topics and groups exist for business
// consumers. Pairs that pass are remembered and not checked again.
type PreChecker struct {
	config PreCheckerConfig

	mu       sync.Mutex
	verified set.Strings
}

// NewPreChecker returns a PreChecker.
func NewPreChecker(config PreCheckerConfig) (*PreChecker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &PreChecker{
		config:   config,
		verified: set.NewStrings(),
	}, nil
}

// PreCheck checks every topic#group key and returns a result per key: nil
// when the shadow topic and group both exist, otherwise the reason. One
// key failing never stops the others being checked.
func (p *PreChecker) PreCheck(ctx context.Context, keys []string) map[string]error {
	live := liveConfigs(p.config.Store, p.config.JoinPoint, p.config.Extract, p.config.Logger)

	var mu sync.Mutex
	results := make(map[string]error, len(keys))
	record := func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		results[key] = err
	}

	var g errgroup.Group
	if p.config.Concurrency > 0 {
		g.SetLimit(p.config.Concurrency)
	}
	for _, key := range keys {
		if p.isVerified(key) {
			record(key, nil)
			continue
		}
		g.Go(func() error {
			err := p.check(ctx, key, live)
			if err == nil {
				p.markVerified(key)
			} else {
				p.config.Logger.Debugf("precheck %q: %v", key, err)
			}
			record(key, err)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *PreChecker) check(ctx context.Context, key string, live map[string]ConsumerConfig) error {
	topic, group, err := SplitKey(key)
	if err != nil {
		return errors.Trace(err)
	}
	if _, ok := live[key]; !ok {
		return errors.Annotatef(ErrBusinessConsumerMissing, "topic %q group %q", topic, group)
	}
	shadowTopic := p.config.Naming.ShadowTopic(topic)
	shadowGroup := p.config.Naming.ShadowGroup(group)

	topicExists, err := p.exists(ctx, "topic", shadowTopic, p.config.Admin.TopicExists)
	if err != nil {
		return errors.Trace(err)
	}
	groupExists, err := p.exists(ctx, "group", shadowGroup, p.config.Admin.GroupExists)
	if err != nil {
		return errors.Trace(err)
	}
	switch {
	case !topicExists && !groupExists:
		return errors.Annotatef(ErrShadowTopicMissing, "shadow topic %q and shadow group %q missing", shadowTopic, shadowGroup)
	case !topicExists:
		return errors.Annotatef(ErrShadowTopicMissing, "shadow topic %q", shadowTopic)
	case !groupExists:
		return errors.Annotatef(ErrShadowGroupMissing, "shadow group %q", shadowGroup)
	}
	return nil
}

// exists runs one administration query bounded by the configured timeout.
// The bound holds even when the admin ignores ctx: the query is left to
// finish in the background and the check reports a timeout.
func (p *PreChecker) exists(ctx context.Context, kind, name string, query func(context.Context, string) (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	answers := make(chan answer, 1)
	go func() {
		ok, err := query(ctx, name)
		answers <- answer{ok: ok, err: err}
	}()

	select {
	case a := <-answers:
		if a.err == nil {
			return a.ok, nil
		}
		if errors.Is(a.err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return false, errors.Timeoutf("checking shadow %s %q", kind, name)
		}
		return false, errors.Annotatef(a.err, "checking shadow %s %q", kind, name)
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return false, errors.Timeoutf("checking shadow %s %q", kind, name)
		}
		return false, errors.Annotatef(ctx.Err(), "checking shadow %s %q", kind, name)
	}
}

// PreCheckWithRetry re-checks failing keys up to attempts times, delay
// apart, until every key passes or ctx is done. It returns the last result
// for every key.
func (p *PreChecker) PreCheckWithRetry(ctx context.Context, keys []string, attempts int, delay time.Duration) map[string]error {
	results := make(map[string]error, len(keys))
	pending := keys
	_ = retry.Call(retry.CallArgs{
		Func: func() error {
			for key, err := range p.PreCheck(ctx, pending) {
				results[key] = err
			}
			pending = failing(results)
			if len(pending) > 0 {
				return errors.Errorf("%d of %d topic/group pairs failed precheck", len(pending), len(keys))
			}
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			p.config.Logger.Infof("precheck attempt %d: %v", attempt, err)
		},
		Attempts: attempts,
		Delay:    delay,
		Clock:    p.config.Clock,
		Stop:     ctx.Done(),
	})
	return results
}

// Verified returns the sorted keys that have passed a precheck.
func (p *PreChecker) Verified() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verified.SortedValues()
}

// Forget drops the remembered result for key so it is checked again.
func (p *PreChecker) Forget(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified.Remove(key)
}

func (p *PreChecker) isVerified(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verified.Contains(key)
}

func (p *PreChecker) markVerified(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified.Add(key)
}

func failing(results map[string]error) []string {
	var keys []string
	for key, err := range results {
		if err != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
