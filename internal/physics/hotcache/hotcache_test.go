// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package hotcache

import (
	"fmt"
	"testing"

	"physicscore/pkg/fixedpoint"
)

type fakeEntry struct {
	name string
	heat fixedpoint.Q
}

func (f fakeEntry) Name() string         { return f.name }
func (f fakeEntry) Heat() fixedpoint.Q   { return f.heat }

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := New()
	if _, ok := c.Lookup("foo", 0); ok {
		t.Fatalf("expected miss on empty cache")
	}
}

func TestPromoteThenLookupHits(t *testing.T) {
	c := New()
	e := fakeEntry{name: "DUP", heat: fixedpoint.FromInt(100)}
	c.Promote(e)

	got, ok := c.Lookup("DUP", fixedpoint.FromInt(5))
	if !ok || got.Name() != "DUP" {
		t.Fatalf("expected cache hit for DUP")
	}
	stats := c.StatsSnapshot()
	if stats.CacheHits != 1 {
		t.Fatalf("expected 1 cache hit, got %d", stats.CacheHits)
	}
}

func TestPromoteIsIdempotent(t *testing.T) {
	c := New()
	e := fakeEntry{name: "X", heat: fixedpoint.FromInt(100)}
	c.Promote(e)
	c.Promote(e)
	if c.count != 1 {
		t.Fatalf("expected promote of an already-cached entry to be a no-op, count=%d", c.count)
	}
}

func TestEvictionWhenFull(t *testing.T) {
	c := New()
	for i := 0; i < Capacity; i++ {
		c.Promote(fakeEntry{name: fmt.Sprintf("w%d", i), heat: fixedpoint.FromInt(100)})
	}
	stats := c.StatsSnapshot()
	if stats.Evictions != 0 {
		t.Fatalf("expected no evictions while filling to capacity, got %d", stats.Evictions)
	}

	c.Promote(fakeEntry{name: "overflow", heat: fixedpoint.FromInt(100)})
	stats = c.StatsSnapshot()
	if stats.Evictions != 1 {
		t.Fatalf("expected exactly one eviction past capacity, got %d", stats.Evictions)
	}
	if c.count != Capacity {
		t.Fatalf("expected count to stay at Capacity, got %d", c.count)
	}
}

func TestShouldPromoteThreshold(t *testing.T) {
	below := fakeEntry{name: "a", heat: fixedpoint.FromInt(PromotionHeatThreshold - 1)}
	at := fakeEntry{name: "b", heat: fixedpoint.FromInt(PromotionHeatThreshold)}
	if ShouldPromote(below) {
		t.Fatalf("expected no promotion below threshold")
	}
	if !ShouldPromote(at) {
		t.Fatalf("expected promotion at threshold")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	c := New()
	c.Promote(fakeEntry{name: "Y", heat: fixedpoint.FromInt(100)})
	c.SetEnabled(false)
	if _, ok := c.Lookup("Y", 0); ok {
		t.Fatalf("expected disabled cache to miss even on a cached entry")
	}
}

func TestLatencyStatsMean(t *testing.T) {
	var s LatencyStats
	s.record(fixedpoint.FromInt(10))
	s.record(fixedpoint.FromInt(20))
	if got := s.Mean().ToFloat(); got != 15.0 {
		t.Fatalf("expected mean 15, got %v", got)
	}
	if s.Min.ToFloat() != 10 || s.Max.ToFloat() != 20 {
		t.Fatalf("unexpected min/max: %v/%v", s.Min.ToFloat(), s.Max.ToFloat())
	}
}
