// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

import (
	"encoding/hex"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/juju/clock"
	"github.com/juju/errors"
)

const (
	minSequence = 1000
	maxSequence = 9999

	flagClusterTest = 'c'
	flagDefault     = 'd'
)

// IDGeneratorConfig configures an IDGenerator.
type IDGeneratorConfig struct {
	Clock clock.Clock
	// IP is the address of this host. Only IPv4 addresses are encoded;
	// anything else falls back to the loopback address.
	IP net.IP
	// PID is the process id.
	PID int
	// EmbeddedSamplingInterval, when positive, is written into every id so
	// that downstream services sample the same traces.
	EmbeddedSamplingInterval int
}

// Validate ensures the config is usable.
func (c IDGeneratorConfig) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.PID < 0 {
		return errors.NotValidf("negative PID")
	}
	if c.EmbeddedSamplingInterval > MaxSamplingInterval-1 {
		return errors.NotValidf("embedded sampling interval %d", c.EmbeddedSamplingInterval)
	}
	return nil
}

// IDGenerator produces trace ids. Ids are laid out as the hex encoded IPv4
// address (8), unix millis (13), a rolling sequence (4), a flag (1), the pid
// (4) and optionally the sampling interval (4). The sequence is what
// sampling decisions are made from.
type IDGenerator struct {
	clock    clock.Clock
	ipHex    string
	pid      int
	interval int
	seq      atomic.Int64
}

// NewIDGenerator returns a generator for the config.
func NewIDGenerator(cfg IDGeneratorConfig) (*IDGenerator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	ip := cfg.IP.To4()
	if ip == nil {
		ip = net.IPv4(127, 0, 0, 1).To4()
	}
	return &IDGenerator{
		clock:    cfg.Clock,
		ipHex:    hex.EncodeToString(ip),
		pid:      cfg.PID % 10000,
		interval: cfg.EmbeddedSamplingInterval,
	}, nil
}

// Next returns a new trace id.
func (g *IDGenerator) Next(clusterTest bool) string {
	n := g.seq.Add(1) - 1
	seq := minSequence + n%(maxSequence-minSequence+1)

	flag := flagDefault
	if clusterTest {
		flag = flagClusterTest
	}
	id := fmt.Sprintf("%s%013d%04d%c%04d", g.ipHex, g.clock.Now().UnixMilli(), seq, flag, g.pid)
	if g.interval > 0 {
		id += fmt.Sprintf("%04d", g.interval)
	}
	return id
}

// IsClusterTestID reports whether the id was generated for cluster test
// traffic.
func IsClusterTestID(traceID string) bool {
	return len(traceID) > sampleCountEnd && traceID[sampleCountEnd] == flagClusterTest
}
