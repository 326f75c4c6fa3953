// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package modeselect implements the 4-bit Jacquard mode selector: a
// hysteresis-gated classifier that picks which of the rolling-window,
// linear-decay, window-inference, and decay-inference loops should be
// active, based on the workload's current entropy/CV/temporal-locality
// metrics.
package modeselect

import "physicscore/pkg/fixedpoint"

// Mode is a 4-bit selector: bit 3=L2 (rolling window), bit 2=L3 (linear
// decay), bit 1=L5 (window inference), bit 0=L6 (decay inference).
type Mode uint8

const (
	ModeC0  Mode = 0x0 // minimal
	ModeC1  Mode = 0x1 // decay inference only
	ModeC2  Mode = 0x2 // window inference only
	ModeC3  Mode = 0x3 // volatile: window+decay inference
	ModeC4  Mode = 0x4 // temporal locality
	ModeC5  Mode = 0x5 // temporal + decay inference
	ModeC6  Mode = 0x6 // temporal + window inference
	ModeC7  Mode = 0x7 // full inference
	ModeC8  Mode = 0x8 // high diversity
	ModeC9  Mode = 0x9 // diverse + decay inference
	ModeC10 Mode = 0xA // diverse + window inference
	ModeC11 Mode = 0xB // diverse + inference
	ModeC12 Mode = 0xC // diverse + temporal
	ModeC13 Mode = 0xD // complex workload
	ModeC14 Mode = 0xE // full adaptive, no decay inference
	ModeC15 Mode = 0xF // full adaptive, all loops on
)

var modeNames = map[Mode]string{
	ModeC0:  "C0_MINIMAL",
	ModeC1:  "C1_DECAY_INF",
	ModeC2:  "C2_WINDOW_INF",
	ModeC3:  "C3_VOLATILE",
	ModeC4:  "C4_TEMPORAL",
	ModeC5:  "C5_TEMPORAL_DECAY_INF",
	ModeC6:  "C6_TEMPORAL_WINDOW_INF",
	ModeC7:  "C7_FULL_INFERENCE",
	ModeC8:  "C8_DIVERSE",
	ModeC9:  "C9_DIVERSE_DECAY_INF",
	ModeC10: "C10_DIVERSE_WINDOW_INF",
	ModeC11: "C11_DIVERSE_INFERENCE",
	ModeC12: "C12_DIVERSE_TEMPORAL",
	ModeC13: "C13_COMPLEX",
	ModeC14: "C14_FULL_ADAPTIVE_NO_DECAY_INF",
	ModeC15: "C15_FULL_ADAPTIVE",
}

// Name returns the mode's human-readable name, or "UNKNOWN" for any value
// outside the 4-bit range.
func (m Mode) Name() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "UNKNOWN"
}

// HysteresisTicks is the number of consecutive identical target-mode votes
// required before a mode change commits.
const HysteresisTicks = 5

// Classification thresholds, data-driven from the DoE sweep the original
// mode selector was fit against.
var (
	EntropyHighThreshold        = fixedpoint.FromFloat(0.75)
	CVHighThreshold              = fixedpoint.FromFloat(0.15)
	TemporalDecayHighThreshold   = fixedpoint.FromFloat(0.5)
	TemporalDecayLowThreshold    = fixedpoint.FromFloat(0.3)
)

// Metrics is the runtime signal the mode selector classifies on.
type Metrics struct {
	Entropy        fixedpoint.Q // rolling-window diversity, 0..1
	CV             fixedpoint.Q // coefficient of variation (short-term volatility)
	TemporalDecay  fixedpoint.Q // temporal-locality strength, 0..1
}

// Config is the set of loop-enable bits the selected mode maps to.
type Config struct {
	RollingWindowEnabled   bool // L2
	LinearDecayEnabled     bool // L3
	WindowInferenceEnabled bool // L5
	DecayInferenceEnabled  bool // L6
}

// State is the hysteresis-gated mode selector's persistent state.
type State struct {
	CurrentMode       Mode
	PendingMode       Mode
	HysteresisCounter uint32
}

// NewState returns a State initialized to initialMode with no pending
// change in flight.
func NewState(initialMode Mode) *State {
	return &State{CurrentMode: initialMode, PendingMode: initialMode}
}

// targetMode classifies metrics into the 4-bit target mode.
func targetMode(m Metrics) Mode {
	entropyHigh := m.Entropy >= EntropyHighThreshold
	cvHigh := m.CV >= CVHighThreshold
	temporalHigh := m.TemporalDecay >= TemporalDecayHighThreshold
	temporalMed := m.TemporalDecay >= TemporalDecayLowThreshold

	var mode Mode
	if entropyHigh {
		mode |= 1 << 3
	}
	if temporalHigh {
		mode |= 1 << 2
	}
	if cvHigh {
		mode |= 1 << 1
	}
	if cvHigh && temporalMed {
		mode |= 1 << 0
	}
	return mode
}

// Update classifies metrics into a target mode and advances the
// hysteresis state machine: a target that matches the pending mode
// increments a counter that commits the mode change at HysteresisTicks
// consecutive votes; a target that differs resets hysteresis to 1 against
// the new pending mode.
func Update(metrics Metrics, state *State) {
	target := targetMode(metrics)

	if target == state.PendingMode {
		state.HysteresisCounter++
		if state.HysteresisCounter >= HysteresisTicks {
			if target != state.CurrentMode {
				state.CurrentMode = target
			}
			state.HysteresisCounter = 0
		}
	} else {
		state.PendingMode = target
		state.HysteresisCounter = 1
	}
}

// ApplyMode decodes state's current mode into the four loop-enable bits.
func ApplyMode(state *State) Config {
	v := state.CurrentMode
	return Config{
		RollingWindowEnabled:   v&(1<<3) != 0,
		LinearDecayEnabled:     v&(1<<2) != 0,
		WindowInferenceEnabled: v&(1<<1) != 0,
		DecayInferenceEnabled:  v&(1<<0) != 0,
	}
}
