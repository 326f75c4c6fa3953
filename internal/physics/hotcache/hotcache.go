// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package hotcache implements the hot-words cache: a small bounded cache of
// frequently executed dictionary entries, promoted by execution heat; when
// full, a promotion overwrites the slot after the most recently used one.
package hotcache

import (
	"sync"

	"physicscore/pkg/fixedpoint"
)

const (
	// Capacity is the maximum number of entries the cache holds
	// (HOTWORDS_CACHE_SIZE).
	Capacity = 32

	// PromotionHeatThreshold is the execution-heat value at which a word
	// becomes eligible for promotion (HOTWORDS_EXECUTION_HEAT_THRESHOLD).
	PromotionHeatThreshold = 50

	// ReorderDeltaThreshold is the heat delta since the last bucket
	// reorder required before moving a word forward in its bucket
	// (HOTWORDS_EXECUTION_HEAT_DELTA_THRESHOLD).
	ReorderDeltaThreshold = 100
)

// Entry is the minimal view the cache needs of a dictionary word; callers
// supply a concrete implementation (the dict package's *dict.Entry
// satisfies this).
type Entry interface {
	Name() string
	Heat() fixedpoint.Q
}

// LatencyStats accumulates Q48.16-nanosecond latency samples for one access
// path (cache hit or bucket-search fallback).
type LatencyStats struct {
	Samples  uint64
	Sum      fixedpoint.Q
	SumSq    fixedpoint.Q
	Min      fixedpoint.Q
	Max      fixedpoint.Q
}

func (s *LatencyStats) record(sample fixedpoint.Q) {
	if s.Samples == 0 {
		s.Min = sample
		s.Max = sample
	} else {
		if sample < s.Min {
			s.Min = sample
		}
		if sample > s.Max {
			s.Max = sample
		}
	}
	s.Sum = fixedpoint.Add(s.Sum, sample)
	s.SumSq = fixedpoint.Add(s.SumSq, fixedpoint.Mul(sample, sample))
	s.Samples++
}

// Mean returns the mean latency, or 0 if no samples have been recorded.
func (s *LatencyStats) Mean() fixedpoint.Q {
	if s.Samples == 0 {
		return 0
	}
	return fixedpoint.Div(s.Sum, fixedpoint.FromInt(int64(s.Samples)))
}

// Stats tracks cache performance counters for diagnostics.
type Stats struct {
	TotalLookups   uint64
	CacheHits      uint64
	BucketHits     uint64
	Misses         uint64
	Evictions      uint64
	Promotions     uint64
	BucketReorders uint64
	CacheHitLatency   LatencyStats
	BucketSearchLatency LatencyStats
}

// Cache is the bounded hot-word cache.
type Cache struct {
	mu        sync.Mutex
	entries   [Capacity]Entry
	count     int
	lruIndex  int
	enabled   bool
	stats     Stats
}

// New returns an empty, enabled hot-word cache.
func New() *Cache {
	return &Cache{enabled: true}
}

// SetEnabled toggles the cache at runtime, for A/B comparison.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// Enabled reports whether the cache is currently active.
func (c *Cache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Lookup scans the cache first; if the enabled cache misses, the caller is
// expected to fall back to a bucket scan and report the outcome via
// RecordBucketHit/RecordMiss so latency statistics stay accurate.
func (c *Cache) Lookup(name string, latencyNs fixedpoint.Q) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalLookups++
	if !c.enabled {
		return nil, false
	}
	for i := 0; i < c.count; i++ {
		if c.entries[i].Name() == name {
			c.lruIndex = i
			c.stats.CacheHits++
			c.stats.CacheHitLatency.record(latencyNs)
			return c.entries[i], true
		}
	}
	return nil, false
}

// RecordBucketHit records a successful bucket-search fallback's latency.
func (c *Cache) RecordBucketHit(latencyNs fixedpoint.Q) {
	c.mu.Lock()
	c.stats.BucketHits++
	c.stats.BucketSearchLatency.record(latencyNs)
	c.mu.Unlock()
}

// RecordMiss records a lookup that found nothing in cache or bucket.
func (c *Cache) RecordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}

// Promote inserts e into the cache. If the cache is already full, it
// overwrites the slot after the one most recently hit by Lookup or filled
// by Promote; it keeps no full recency order, so the evicted entry is not
// necessarily the least recently used one, and pinned words are not
// exempt. Callers promote once e's heat crosses PromotionHeatThreshold.
func (c *Cache) Promote(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := 0; i < c.count; i++ {
		if c.entries[i].Name() == e.Name() {
			return // already cached
		}
	}

	if c.count < Capacity {
		c.entries[c.count] = e
		c.count++
		c.stats.Promotions++
		return
	}

	evictIdx := (c.lruIndex + 1) % Capacity
	c.entries[evictIdx] = e
	c.lruIndex = evictIdx
	c.stats.Evictions++
	c.stats.Promotions++
}

// ShouldPromote reports whether e's heat has crossed the promotion
// threshold.
func ShouldPromote(e Entry) bool {
	return e.Heat() >= fixedpoint.FromInt(PromotionHeatThreshold)
}

// ShouldReorder reports whether the heat accumulated since the last bucket
// reorder (delta) reaches ReorderDeltaThreshold, the original's
// thrash-avoidance gate.
func ShouldReorder(delta fixedpoint.Q) bool {
	return delta >= fixedpoint.FromInt(ReorderDeltaThreshold)
}

// StatsSnapshot returns a copy of the current statistics.
func (c *Cache) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// ResetStats zeroes the statistics counters, for before/after comparison.
func (c *Cache) ResetStats() {
	c.mu.Lock()
	c.stats = Stats{}
	c.mu.Unlock()
}
