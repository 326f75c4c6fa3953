// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0

// Package entry holds the per-word execution-physics metadata: heat,
// temperature, mass, and linear decay.
package entry

import (
	"sync"
	"sync/atomic"

	"physicscore/pkg/fixedpoint"
)

// Flag bits on an Entry, mirroring the original's per-word state bits.
const (
	FlagHot uint32 = 1 << iota
	FlagFrozen
	FlagPubsub // word opted in to publish heat-change notifications
	FlagPinned // word marked pinned; the hot-word cache's eviction does not consult it
)

// Metadata is the atomic execution-physics state attached to one dictionary
// word. The heat counter is updated with relaxed-ordering atomic fetch-add,
// matching physics_metadata.h's __ATOMIC_RELAXED contract: heat is a
// tally that rises by one per execution and falls only through
// ApplyLinearDecay, not a synchronization point, so no acquire/release
// semantics are required around it.
type Metadata struct {
	heat        atomic.Int64 // Q48.16, never negative; lowered only by linear decay
	temperature atomic.Int64 // Q48.16 EMA of recent heat deltas
	mass        atomic.Int64 // Q48.16, slower-moving smoothing of temperature
	flags       atomic.Uint32

	mu           sync.Mutex
	lastHeat     fixedpoint.Q
	lastDecayNs  uint64
}

// NewMetadata returns zero-valued execution-physics state.
func NewMetadata() *Metadata {
	return &Metadata{}
}

// IncrementHeat increments the heat counter by one execution, relaxed.
func (m *Metadata) IncrementHeat() {
	m.heat.Add(int64(fixedpoint.One))
}

// Heat loads the current heat value.
func (m *Metadata) Heat() fixedpoint.Q {
	return fixedpoint.Q(m.heat.Load())
}

// Temperature loads the current EMA temperature.
func (m *Metadata) Temperature() fixedpoint.Q {
	return fixedpoint.Q(m.temperature.Load())
}

// Mass loads the current mass value.
func (m *Metadata) Mass() fixedpoint.Q {
	return fixedpoint.Q(m.mass.Load())
}

// Touch recomputes temperature from the heat delta observed since the last
// touch, using a 4-tap EMA: new = (3*prior + target) / 4. Mass is smoothed
// the same way, one step behind temperature, as a slower-moving signal
// read through Mass; the inference engine does not read it.
func (m *Metadata) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := fixedpoint.Q(m.heat.Load())
	target := fixedpoint.Sub(current, m.lastHeat)
	m.lastHeat = current

	prior := fixedpoint.Q(m.temperature.Load())
	next := fixedpoint.Div(fixedpoint.Add(fixedpoint.Mul(fixedpoint.FromInt(3), prior), target), fixedpoint.FromInt(4))
	m.temperature.Store(int64(next))

	priorMass := fixedpoint.Q(m.mass.Load())
	nextMass := fixedpoint.Div(fixedpoint.Add(fixedpoint.Mul(fixedpoint.FromInt(3), priorMass), next), fixedpoint.FromInt(4))
	m.mass.Store(int64(nextMass))
}

// ApplyLinearDecay reduces heat by elapsed time times slope, mirroring
// physics_metadata_apply_linear_decay: decay_amount = (elapsed_us *
// slope_q48) >> 16, applied via a CAS loop so heat never goes negative.
// Frozen words are exempt. elapsed is measured against the timestamp of
// the previous call (or Reset), not against minIntervalNs alone: an
// elapsed interval shorter than minIntervalNs is treated as
// insignificant and skipped, matching DECAY_MIN_INTERVAL. nowNs is
// stamped unconditionally, even when the frozen or min-interval checks
// below skip the actual decay, so that the next call's elapsed window
// starts from here.
func (m *Metadata) ApplyLinearDecay(slope fixedpoint.Q, minIntervalNs uint32, nowNs uint64) {
	m.mu.Lock()
	last := m.lastDecayNs
	m.lastDecayNs = nowNs
	m.mu.Unlock()

	if m.HasFlag(FlagFrozen) {
		return
	}

	elapsedNs := nowNs - last
	if elapsedNs < uint64(minIntervalNs) {
		return
	}

	elapsedUs := elapsedNs / 1000
	amount := fixedpoint.Mul(fixedpoint.FromInt(int64(elapsedUs)), slope)
	if amount <= 0 {
		return
	}

	for {
		old := m.heat.Load()
		if old <= 0 {
			return
		}
		next := old - int64(amount)
		if int64(amount) >= old {
			next = 0
		}
		if m.heat.CompareAndSwap(old, next) {
			return
		}
	}
}

// Freeze exempts the word from linear decay.
func (m *Metadata) Freeze() { m.SetFlag(FlagFrozen) }

// Unfreeze clears the decay exemption set by Freeze.
func (m *Metadata) Unfreeze() { m.ClearFlag(FlagFrozen) }

// Frozen reports whether the word is currently exempt from decay.
func (m *Metadata) Frozen() bool { return m.HasFlag(FlagFrozen) }

// Pin sets FlagPinned on the word. The hot-word cache's eviction does not
// consult the flag, so a pinned word can still be evicted.
func (m *Metadata) Pin() { m.SetFlag(FlagPinned) }

// Unpin clears the flag set by Pin.
func (m *Metadata) Unpin() { m.ClearFlag(FlagPinned) }

// Pinned reports whether FlagPinned is currently set.
func (m *Metadata) Pinned() bool { return m.HasFlag(FlagPinned) }

// SetFlag sets the given flag bits.
func (m *Metadata) SetFlag(flag uint32) { m.flags.Or(flag) }

// ClearFlag clears the given flag bits.
func (m *Metadata) ClearFlag(flag uint32) { m.flags.And(^flag) }

// HasFlag reports whether all bits in flag are set.
func (m *Metadata) HasFlag(flag uint32) bool {
	return m.flags.Load()&flag == flag
}

// Reset zeroes all physics state, used only by explicit test/reset paths;
// never called on a hot path.
func (m *Metadata) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heat.Store(0)
	m.temperature.Store(0)
	m.mass.Store(0)
	m.flags.Store(0)
	m.lastHeat = 0
	m.lastDecayNs = 0
}
