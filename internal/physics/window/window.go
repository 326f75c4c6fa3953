// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package window implements the rolling window of truth: a circular buffer
// of recently executed word IDs, published through a double-buffered,
// lock-free snapshot so readers (diversity measurement, inference-engine
// trajectory extraction) never contend with the writer.
package window

import (
	"sync"
	"sync/atomic"
)

const (
	// Size is the rolling window's fixed capacity (ROLLING_WINDOW_SIZE).
	Size = 4096

	// warmThreshold is the total-execution count at which the window is
	// considered representative. It is an internal constant, distinct
	// from any configurable tuning knob.
	warmThreshold = 1024

	// AdaptiveMinWindowSize is the floor the effective window size will
	// never shrink below (ADAPTIVE_MIN_WINDOW_SIZE).
	AdaptiveMinWindowSize = 256

	// AdaptiveCheckFrequency is how often (in executions) an adaptive
	// shrink/grow check is armed (ADAPTIVE_CHECK_FREQUENCY).
	AdaptiveCheckFrequency = 256

	// AdaptiveShrinkRate is the percentage of the current effective size
	// retained on a shrink (ADAPTIVE_SHRINK_RATE).
	AdaptiveShrinkRate = 75

	// AdaptiveGrowthThreshold is the percent growth-rate cutoff between
	// shrinking and growing the effective window (ADAPTIVE_GROWTH_THRESHOLD).
	AdaptiveGrowthThreshold = 1
)

type view struct {
	history             []uint32
	windowPos           uint32
	totalExecutions     uint64
	effectiveWindowSize uint32
	isWarm              bool
}

// Window is the rolling window of truth.
type Window struct {
	mu sync.Mutex // guards history/windowPos/totalExecutions and the adaptive-pass fields

	history         [Size]uint32
	windowPos       uint32
	totalExecutions uint64
	isWarm          atomic.Bool

	effectiveWindowSize atomic.Uint32

	adaptiveCheckAccumulator uint32
	adaptivePending          atomic.Bool
	lastPatternDiversity     uint64
	diversityCheckCount      uint64

	// Double-buffered snapshot for lock-free readers.
	snapshotPending atomic.Bool
	snapshotIndex   atomic.Uint32
	buffers         [2]view
}

// New returns an initialized, cold rolling window.
func New() *Window {
	w := &Window{}
	w.effectiveWindowSize.Store(Size)
	w.snapshotPending.Store(true)
	w.publishSnapshot()
	return w
}

// RecordExecution appends wordID to the window, advances the write
// position, and arms an adaptive check every AdaptiveCheckFrequency
// executions.
func (w *Window) RecordExecution(wordID uint32) {
	w.mu.Lock()
	w.history[w.windowPos] = wordID
	w.windowPos = (w.windowPos + 1) % Size
	w.totalExecutions++
	if w.totalExecutions >= warmThreshold {
		w.isWarm.Store(true)
	}
	w.snapshotPending.Store(true)

	w.adaptiveCheckAccumulator++
	if w.adaptiveCheckAccumulator >= AdaptiveCheckFrequency {
		w.adaptiveCheckAccumulator = 0
		w.adaptivePending.Store(true)
	}
	w.mu.Unlock()
}

// publishSnapshot copies the live history into the inactive buffer and
// flips the published index with a release store, then clears the pending
// flag with a release store — mirroring rolling_window_of_truth.c's
// publish/flip sequence exactly.
func (w *Window) publishSnapshot() {
	w.mu.Lock()
	writeIdx := (w.snapshotIndex.Load() ^ 1) & 1
	buf := &w.buffers[writeIdx]
	if buf.history == nil {
		buf.history = make([]uint32, Size)
	}
	copy(buf.history, w.history[:])
	buf.windowPos = w.windowPos
	buf.totalExecutions = w.totalExecutions
	buf.effectiveWindowSize = w.effectiveWindowSize.Load()
	buf.isWarm = w.isWarm.Load()
	w.mu.Unlock()

	w.snapshotIndex.Store(writeIdx)
	w.snapshotPending.Store(false)
}

// PublishSnapshotIfNeeded publishes only if a write has occurred since the
// last publish (an atomic exchange-and-check on the pending flag, so
// concurrent callers never double-publish).
func (w *Window) PublishSnapshotIfNeeded() {
	if w.snapshotPending.Swap(false) {
		w.publishSnapshot()
	}
}

// snapshot returns a read-only view of the most recently published buffer.
func (w *Window) snapshot() view {
	idx := w.snapshotIndex.Load() & 1
	return w.buffers[idx]
}

// IsWarm reports whether the window has recorded enough executions to be
// considered statistically representative.
func (w *Window) IsWarm() bool {
	return w.isWarm.Load()
}

// EffectiveWindowSize returns the current adaptively tuned scan width.
func (w *Window) EffectiveWindowSize() uint32 {
	return w.effectiveWindowSize.Load()
}

// TotalExecutions returns the lifetime execution count.
func (w *Window) TotalExecutions() uint64 {
	return w.snapshot().totalExecutions
}

func scanLimit(v view) uint32 {
	if v.isWarm {
		return v.effectiveWindowSize
	}
	return Size
}

// measureDiversity counts unique adjacent-word transitions over the last
// scanLimit(v) entries (or over every recorded entry, when fewer have been
// recorded), scanned backward with modular indexing.
func measureDiversity(v view) uint64 {
	if v.history == nil {
		return 0
	}
	limit := scanLimit(v)
	if limit > Size {
		limit = Size
	}
	if uint64(limit) > v.totalExecutions {
		limit = uint32(v.totalExecutions)
	}
	seen := make(map[[2]uint32]struct{}, limit)
	var prev uint32
	havePrev := false
	for i := uint32(0); i < limit; i++ {
		idx := (v.windowPos + Size - limit + i) % Size
		cur := v.history[idx]
		if havePrev {
			seen[[2]uint32{prev, cur}] = struct{}{}
		}
		prev = cur
		havePrev = true
	}
	return uint64(len(seen))
}

// MeasureDiversity publishes if needed and returns the unique-transition
// count over the current effective window.
func (w *Window) MeasureDiversity() uint64 {
	w.PublishSnapshotIfNeeded()
	return measureDiversity(w.snapshot())
}

// DiversityPercent returns MeasureDiversity expressed as a 0-100 percentage
// of the scanned window (effective window size once warm, Size otherwise),
// matching metrics_write_james_law_csv_row's pattern-diversity percentage.
func (w *Window) DiversityPercent() uint64 {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	limit := uint64(scanLimit(v))
	if limit == 0 {
		return 0
	}
	pct := (measureDiversity(v) * 100) / limit
	if pct > 100 {
		pct = 100
	}
	return pct
}

// RunAdaptivePass measures current diversity against the last recorded
// value and shrinks or grows EffectiveWindowSize accordingly. The first
// call after a size reset only records a baseline, matching the original's
// bootstrap behavior.
func (w *Window) RunAdaptivePass() {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	if v.history == nil || !v.isWarm {
		return
	}

	current := measureDiversity(v)
	w.diversityCheckCount++

	if w.lastPatternDiversity == 0 {
		w.lastPatternDiversity = current
		return
	}

	var delta uint64
	if current > w.lastPatternDiversity {
		delta = current - w.lastPatternDiversity
	}
	var growthRateQ48 uint64
	if w.lastPatternDiversity > 0 {
		growthRateQ48 = (delta << 16) / w.lastPatternDiversity
	}
	thresholdQ48 := (uint64(AdaptiveGrowthThreshold) << 16) / 100

	cur := w.effectiveWindowSize.Load()
	if growthRateQ48 < thresholdQ48 {
		if cur > AdaptiveMinWindowSize {
			newSize := (cur * AdaptiveShrinkRate) / 100
			if newSize < AdaptiveMinWindowSize {
				newSize = AdaptiveMinWindowSize
			}
			if newSize < cur {
				w.effectiveWindowSize.Store(newSize)
			}
		}
	} else {
		if cur < Size {
			growthFactor := (100 * 100) / AdaptiveShrinkRate
			newSize := (cur * uint32(growthFactor)) / 100
			if newSize > Size {
				newSize = Size
			}
			if newSize > cur {
				w.effectiveWindowSize.Store(newSize)
			}
		}
	}

	w.lastPatternDiversity = current
}

// CheckAdaptiveShrink arms and immediately services an adaptive pass,
// matching rolling_window_check_adaptive_shrink's synchronous contract.
func (w *Window) CheckAdaptiveShrink() {
	w.adaptivePending.Store(true)
	w.Service()
}

// Service performs a snapshot publish and, if an adaptive check is armed,
// runs the adaptive pass exactly once.
func (w *Window) Service() {
	w.PublishSnapshotIfNeeded()
	if !w.adaptivePending.Swap(false) {
		return
	}
	w.RunAdaptivePass()
}

// ExportExecutionHistory linearizes the circular buffer into out, starting
// from the oldest retained entry, and returns the number of entries
// written (capped by len(out)).
func (w *Window) ExportExecutionHistory(out []uint32) uint64 {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	if v.history == nil || len(out) == 0 {
		return 0
	}

	exportCount := v.totalExecutions
	if exportCount > uint64(len(out)) {
		exportCount = uint64(len(out))
	}
	if exportCount == 0 {
		return 0
	}

	if v.totalExecutions < Size {
		copy(out[:exportCount], v.history[:exportCount])
		return exportCount
	}

	firstPart := uint64(Size) - uint64(v.windowPos)
	copy(out, v.history[v.windowPos:])
	if exportCount > firstPart {
		copy(out[firstPart:exportCount], v.history[:exportCount-firstPart])
	}
	return exportCount
}

// GetRecentSequence fills out with the most recent min(depth, available)
// word IDs, oldest first, and returns how many were written.
func (w *Window) GetRecentSequence(out []uint32) uint32 {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	if v.history == nil {
		return 0
	}
	depth := uint32(len(out))
	available := v.effectiveWindowSize
	if !v.isWarm {
		available = Size
	}
	actual := depth
	if actual > available {
		actual = available
	}
	for i := uint32(0); i < actual; i++ {
		idx := int(v.windowPos) - int(actual) + int(i)
		if idx < 0 {
			idx += Size
		}
		out[i] = v.history[idx]
	}
	return actual
}

// FindHottestWord returns the word ID with the highest observed frequency
// among the recorded entries in the window, or 0 if the window is not yet
// warm.
func (w *Window) FindHottestWord(dictSize uint32) uint32 {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	if v.history == nil || !v.isWarm {
		return 0
	}
	n := uint64(Size)
	if v.totalExecutions < n {
		n = v.totalExecutions
	}
	freq := make([]uint32, dictSize)
	for _, id := range v.history[:n] {
		if id < dictSize {
			freq[id]++
		}
	}
	var hottest uint32
	var maxFreq uint32
	for id, f := range freq {
		if f > maxFreq {
			maxFreq = f
			hottest = uint32(id)
		}
	}
	return hottest
}

// CountTransition returns how many times wordA was immediately followed by
// wordB in the window.
func (w *Window) CountTransition(wordA, wordB uint32) uint64 {
	w.PublishSnapshotIfNeeded()
	v := w.snapshot()
	if v.history == nil || !v.isWarm {
		return 0
	}
	var count uint64
	for i := uint32(0); i < Size; i++ {
		cur := v.history[i]
		next := v.history[(i+1)%Size]
		if cur == wordA && next == wordB {
			count++
		}
	}
	return count
}

// Reset clears the window back to its cold, empty state.
func (w *Window) Reset() {
	w.mu.Lock()
	for i := range w.history {
		w.history[i] = 0
	}
	w.windowPos = 0
	w.totalExecutions = 0
	w.mu.Unlock()

	w.isWarm.Store(false)
	w.effectiveWindowSize.Store(Size)
	w.lastPatternDiversity = 0
	w.snapshotPending.Store(true)
	w.publishSnapshot()
}
