// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics tracks per-model request counters and latency. Entries are
// created lazily on first use and never removed; the set is bounded by the
// fixed catalog size.
package metrics

import (
	"sync"
	"time"
)

// Snapshot is the read-only view of one model's counters.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	Errors        int64   `json:"errors"`
	AvgLatencyMs  float64 `json:"avg_latency"`
}

type entry struct {
	total          int64
	errors         int64
	totalLatencyMs int64
}

// Tracker records the outcome of every provider attempt. One mutex guards
// the map; it is never held across a network call.
type Tracker struct {
	mu    sync.Mutex
	stats map[string]*entry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: make(map[string]*entry)}
}

// Record counts one attempt against a model, success or failure. Cancelled
// and partial streaming attempts are recorded the same way with success
// false, so counters stay consistent under caller cancellation.
func (t *Tracker) Record(modelID string, latency time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.stats[modelID]
	if !ok {
		e = &entry{}
		t.stats[modelID] = e
	}
	e.total++
	if !success {
		e.errors++
	}
	e.totalLatencyMs += latency.Milliseconds()
}

// Snapshot returns a copy of all counters keyed by model id.
func (t *Tracker) Snapshot() map[string]Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Snapshot, len(t.stats))
	for id, e := range t.stats {
		s := Snapshot{TotalRequests: e.total, Errors: e.errors}
		if e.total > 0 {
			s.AvgLatencyMs = float64(e.totalLatencyMs) / float64(e.total)
		}
		out[id] = s
	}
	return out
}
