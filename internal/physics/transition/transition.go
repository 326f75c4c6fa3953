// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package transition tracks per-word successor statistics and gates
// speculative prefetch predictions on a minimum sample count and a
// probability threshold.
package transition

import (
	"sync"

	"physicscore/pkg/fixedpoint"
)

const (
	// MinSamples is the minimum number of observed successors from a word
	// before a prediction is offered.
	MinSamples = 10

	// ProbabilityThreshold is the minimum observed successor probability,
	// in Q48.16, required for PredictNext to return ok=true.
	ProbabilityThreshold = fixedpoint.Q(fixedpoint.One / 2) // 0.5
)

// Table holds one word's observed successor counts, guarded by its own
// mutex rather than a global lock so the hot path (RecordTransition) never
// contends with unrelated words.
type Table struct {
	mu      sync.Mutex
	counts  map[uint32]uint64
	total   uint64
	hits    uint64
	misses  uint64
	attempt uint64
}

// NewTable returns an empty successor table.
func NewTable() *Table {
	return &Table{counts: make(map[uint32]uint64)}
}

// RecordTransition increments the observed count of "to" following this
// table's owning word.
func (t *Table) RecordTransition(to uint32) {
	t.mu.Lock()
	t.counts[to]++
	t.total++
	t.mu.Unlock()
}

// PredictNext returns the most frequently observed successor and its
// probability, withholding a prediction (ok=false) until at least
// MinSamples observations exist and the best candidate clears
// ProbabilityThreshold.
func (t *Table) PredictNext() (word uint32, probability fixedpoint.Q, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total < MinSamples {
		return 0, 0, false
	}

	var bestWord uint32
	var bestCount uint64
	for w, c := range t.counts {
		if c > bestCount {
			bestCount = c
			bestWord = w
		}
	}
	if bestCount == 0 {
		return 0, 0, false
	}

	prob := fixedpoint.Div(fixedpoint.FromInt(int64(bestCount)), fixedpoint.FromInt(int64(t.total)))
	if prob < ProbabilityThreshold {
		return 0, 0, false
	}
	return bestWord, prob, true
}

// RecordPrefetchIssued marks that a prediction from this table was actually
// acted on: the predicted word was looked up and promoted into the
// hot-word cache. This is distinct from RecordOutcome, which fires later
// once the following execution's actual identity is known; a table can
// accumulate outcomes without ever having an issued prefetch if the
// speculation gate (PredictNext's ok) was never met.
func (t *Table) RecordPrefetchIssued() {
	t.mu.Lock()
	t.attempt++
	t.mu.Unlock()
}

// RecordOutcome records whether a previously issued prefetch from this
// table was ultimately correct, feeding the pipelining accuracy metrics.
func (t *Table) RecordOutcome(hit bool) {
	t.mu.Lock()
	if hit {
		t.hits++
	} else {
		t.misses++
	}
	t.mu.Unlock()
}

// Stats returns the attempt/hit/miss counters for metrics export.
func (t *Table) Stats() (attempts, hits, misses uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempt, t.hits, t.misses
}

// Registry maps word IDs to their successor tables, created lazily on
// first observation.
type Registry struct {
	mu     sync.RWMutex
	tables map[uint32]*Table
}

// NewRegistry returns an empty transition registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[uint32]*Table)}
}

// TableFor returns (creating if necessary) the successor table for word.
func (r *Registry) TableFor(word uint32) *Table {
	r.mu.RLock()
	t, ok := r.tables[word]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[word]; ok {
		return t
	}
	t = NewTable()
	r.tables[word] = t
	return t
}

// RecordTransition records that "to" followed "from".
func (r *Registry) RecordTransition(from, to uint32) {
	r.TableFor(from).RecordTransition(to)
}

// PredictNext predicts the successor of "from", if any.
func (r *Registry) PredictNext(from uint32) (word uint32, probability fixedpoint.Q, ok bool) {
	r.mu.RLock()
	t, exists := r.tables[from]
	r.mu.RUnlock()
	if !exists {
		return 0, 0, false
	}
	return t.PredictNext()
}

// AggregateAccuracy sums attempts/hits across every table, for the
// pipelining metrics snapshot.
func (r *Registry) AggregateAccuracy() (attempts, hits uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tables {
		a, h, _ := t.Stats()
		attempts += a
		hits += h
	}
	return attempts, hits
}
