// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package invocation

import (
	"hash/fnv"
)

const (
	// MaxSamplingInterval is the largest interval honoured; anything above
	// it samples every trace.
	MaxSamplingInterval = 10000

	sampleCountOffset      = 21
	sampleCountEnd         = 25
	embeddedIntervalOffset = 30
	embeddedIntervalEnd    = 34
)

// SamplingConfig holds the sampling intervals in force. An interval of n
// samples one trace in n.
type SamplingConfig struct {
	// Interval applies to ordinary traffic.
	Interval int
	// ClusterTestInterval applies to cluster test traffic.
	ClusterTestInterval int
	// UseTraceIDInterval prefers an interval embedded in the trace id over
	// the configured ones.
	UseTraceIDInterval bool
}

// Sampled reports whether the call chain should be recorded.
func (c *Context) Sampled(cfg SamplingConfig) bool {
	if c.traceID == "" {
		return false
	}
	if c.debug {
		return true
	}
	interval := cfg.Interval
	if c.clusterTest {
		interval = cfg.ClusterTestInterval
	}
	return TraceSampled(c.traceID, interval, cfg.UseTraceIDInterval)
}

// TraceSampled is a deterministic function of the trace id and the
// interval: every caller asking about the same trace gets the same answer.
func TraceSampled(traceID string, interval int, useEmbedded bool) bool {
	if useEmbedded {
		if embedded := embeddedInterval(traceID); embedded > 0 {
			interval = embedded
		}
	}
	if interval <= 1 || interval > MaxSamplingInterval {
		return true
	}
	count, ok := digits(traceID, sampleCountOffset, sampleCountEnd)
	if !ok {
		h := fnv.New32a()
		_, _ = h.Write([]byte(traceID))
		count = int(h.Sum32() & 0x7fffffff)
	}
	return count%interval == 0
}

func embeddedInterval(traceID string) int {
	interval, ok := digits(traceID, embeddedIntervalOffset, embeddedIntervalEnd)
	if !ok {
		return 0
	}
	return interval
}

func digits(s string, from, to int) (int, bool) {
	if len(s) < to {
		return 0, false
	}
	n := 0
	for i := from; i < to; i++ {
		ch := s[i]
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}
