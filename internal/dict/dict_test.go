// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dict

import (
	"testing"

	"physicscore/pkg/fixedpoint"
)

func TestAddWordIsIdempotentByName(t *testing.T) {
	d := New(nil)
	a := d.AddWord("DUP")
	b := d.AddWord("DUP")
	if a != b {
		t.Fatalf("expected re-adding a name to return the same entry")
	}
	if d.Len() != 1 {
		t.Fatalf("expected dictionary length 1, got %d", d.Len())
	}
}

func TestFindWordNaiveNewestFirst(t *testing.T) {
	d := New(nil)
	d.AddWord("DROP")
	d.AddWord("DUP")
	got := d.FindWordNaive("DUP")
	if got == nil || got.Name() != "DUP" {
		t.Fatalf("expected to find DUP")
	}
	if d.FindWordNaive("nonexistent") != nil {
		t.Fatalf("expected nil for missing word")
	}
}

func TestByIDRoundTrip(t *testing.T) {
	d := New(nil)
	e := d.AddWord("SWAP")
	got := d.ByID(e.WordID)
	if got != e {
		t.Fatalf("expected ByID to return the same entry")
	}
	if d.ByID(99999) != nil {
		t.Fatalf("expected nil for unknown word ID")
	}
}

func heatWord(d *Dictionary, name string, heat int64) *Entry {
	e := d.AddWord(name)
	for i := int64(0); i < heat; i++ {
		e.Metadata.IncrementHeat()
	}
	return e
}

func TestUpdateHeatPercentilesOrdersThresholds(t *testing.T) {
	d := New(nil)
	heatWord(d, "cold1", 1)
	heatWord(d, "cold2", 2)
	heatWord(d, "mid1", 50)
	heatWord(d, "mid2", 55)
	heatWord(d, "hot1", 100)
	heatWord(d, "hot2", 110)
	d.UpdateHeatPercentiles()

	p25, p50, p75 := d.Percentiles()
	if !(p25 <= p50 && p50 <= p75) {
		t.Fatalf("expected p25 <= p50 <= p75, got %v %v %v", p25, p50, p75)
	}
}

func TestFindWordHeatAwareFindsAcrossBands(t *testing.T) {
	d := New(nil)
	// All share first byte 'a' to land in the same bucket.
	heatWord(d, "acold", 1)
	heatWord(d, "amid", 50)
	heatWord(d, "ahot", 200)
	d.UpdateHeatPercentiles()

	for _, name := range []string{"acold", "amid", "ahot"} {
		got := d.FindWordHeatAware(name)
		if got == nil || got.Name() != name {
			t.Fatalf("expected to find %s via heat-aware scan, got %v", name, got)
		}
	}
	if d.FindWordHeatAware("amissing") != nil {
		t.Fatalf("expected nil for missing word in a populated bucket")
	}
}

func TestFindWordHeatAwareEmptyBucket(t *testing.T) {
	d := New(nil)
	d.AddWord("zword")
	if d.FindWordHeatAware("anything") != nil {
		t.Fatalf("expected nil for a bucket with no entries")
	}
}

func TestReorganizeBucketsSortsDescending(t *testing.T) {
	d := New(nil)
	heatWord(d, "alow", 1)
	heatWord(d, "ahigh", 500)
	heatWord(d, "amid", 100)
	d.ReorganizeBuckets()

	bucket := d.bucketList['a']
	for i := 1; i < len(bucket); i++ {
		if bucket[i-1].Metadata.Heat() < bucket[i].Metadata.Heat() {
			t.Fatalf("expected descending heat order, got %v before %v",
				bucket[i-1].Metadata.Heat(), bucket[i].Metadata.Heat())
		}
	}
}

func TestAdaptiveOptimizationPassSelectsStrategy(t *testing.T) {
	d := New(nil)
	heatWord(d, "a1", 10)
	heatWord(d, "a2", 20)

	d.AdaptiveOptimizationPass(80)
	if d.Strategy() != StrategyHeatAware {
		t.Fatalf("expected heat-aware strategy above diversity switch, got %v", d.Strategy())
	}

	// Force the throttle to not apply for the next assertion by resetting it.
	d.mu.Lock()
	d.lastReorgAt = d.lastReorgAt.Add(-2 * reorgMinInterval)
	d.mu.Unlock()

	d.AdaptiveOptimizationPass(10)
	if d.Strategy() != StrategyNaive {
		t.Fatalf("expected naive strategy below diversity switch, got %v", d.Strategy())
	}
}

func TestAdaptiveOptimizationPassThrottled(t *testing.T) {
	d := New(nil)
	heatWord(d, "a1", 10)
	d.AdaptiveOptimizationPass(80)
	d.AdaptiveOptimizationPass(10) // should be throttled, strategy unchanged
	if d.Strategy() != StrategyHeatAware {
		t.Fatalf("expected throttled second call to leave strategy unchanged")
	}
}

func TestForEachVisitsAllEntries(t *testing.T) {
	d := New(nil)
	d.AddWord("one")
	d.AddWord("two")
	d.AddWord("three")

	seen := make(map[string]bool)
	d.ForEach(func(e *Entry) { seen[e.Name()] = true })
	if len(seen) != 3 {
		t.Fatalf("expected to visit 3 entries, saw %d", len(seen))
	}
}

func TestForgetRemovesWordAndFindWordFailsAfter(t *testing.T) {
	d := New(nil)
	d.AddWord("DUP")
	if !d.Forget("DUP") {
		t.Fatalf("expected Forget to report success for a known word")
	}
	if d.FindWordNaive("DUP") != nil {
		t.Fatalf("expected FindWordNaive to return nil after Forget")
	}
	if d.ByID(1) != nil {
		t.Fatalf("expected ByID to return nil after Forget")
	}
	if d.Len() != 0 {
		t.Fatalf("expected dictionary to be empty after forgetting its only word, got %d", d.Len())
	}
}

func TestForgetReclaimsNewerEntriesToo(t *testing.T) {
	d := New(nil)
	d.AddWord("DUP")
	d.AddWord("SWAP")
	d.AddWord("DROP")

	if !d.Forget("SWAP") {
		t.Fatalf("expected Forget to succeed")
	}
	if d.FindWordNaive("SWAP") != nil || d.FindWordNaive("DROP") != nil {
		t.Fatalf("expected SWAP and DROP (defined after it) to both be forgotten")
	}
	if d.FindWordNaive("DUP") == nil {
		t.Fatalf("expected DUP (defined before the fence) to survive")
	}
	if d.Len() != 1 {
		t.Fatalf("expected only DUP to remain, got len %d", d.Len())
	}
}

func TestForgetUnknownWordReportsFalse(t *testing.T) {
	d := New(nil)
	if d.Forget("NOPE") {
		t.Fatalf("expected Forget to report false for an unknown word")
	}
}

func TestForgetRecyclesWordID(t *testing.T) {
	d := New(nil)
	dup := d.AddWord("DUP")
	d.Forget("DUP")
	again := d.AddWord("DUP2")
	if again.WordID != dup.WordID {
		t.Fatalf("expected the next AddWord to recycle the forgotten word's ID: got %d want %d", again.WordID, dup.WordID)
	}
}

func TestFreezeUnfreezeControlSurface(t *testing.T) {
	d := New(nil)
	e := d.AddWord("FREEZE-ME")
	if !d.Freeze("FREEZE-ME") {
		t.Fatalf("expected Freeze to report success")
	}
	if !e.Metadata.Frozen() {
		t.Fatalf("expected the entry's metadata to be frozen")
	}
	if !d.Unfreeze("FREEZE-ME") {
		t.Fatalf("expected Unfreeze to report success")
	}
	if e.Metadata.Frozen() {
		t.Fatalf("expected the entry's metadata to be unfrozen")
	}
	if d.Freeze("NOPE") {
		t.Fatalf("expected Freeze to report false for an unknown word")
	}
}

func TestPinUnpinControlSurface(t *testing.T) {
	d := New(nil)
	e := d.AddWord("PIN-ME")
	if !d.Pin("PIN-ME") {
		t.Fatalf("expected Pin to report success")
	}
	if !e.Metadata.Pinned() {
		t.Fatalf("expected the entry's metadata to be pinned")
	}
	if !d.Unpin("PIN-ME") {
		t.Fatalf("expected Unpin to report success")
	}
	if e.Metadata.Pinned() {
		t.Fatalf("expected the entry's metadata to be unpinned")
	}
}

func TestDecayBatchAppliesToAtMostBatchEntries(t *testing.T) {
	d := New(nil)
	for i := 0; i < 10; i++ {
		heatWord(d, string(rune('a'+i)), 1000)
	}

	slope := fixedpoint.FromFloat(0.5)
	cursor := d.DecayBatch(1, 3, slope, 0, 1) // baseline pass, nothing decays yet (tiny elapsed)
	cursor = d.DecayBatch(cursor, 3, slope, 0, 1_000_000_000)

	decayed := 0
	d.ForEach(func(e *Entry) {
		if e.Metadata.Heat() < fixedpoint.FromInt(1000) {
			decayed++
		}
	})
	if decayed != 3 {
		t.Fatalf("expected exactly 3 entries decayed in a batch of 3, got %d", decayed)
	}
	if cursor == 0 {
		t.Fatalf("expected a nonzero next cursor")
	}
}

func TestEntrySatisfiesHotcacheEntryInterface(t *testing.T) {
	d := New(nil)
	e := d.AddWord("probe")
	var _ interface {
		Name() string
		Heat() fixedpoint.Q
	} = e
}
