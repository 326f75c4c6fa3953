// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package modeselect

import (
	"testing"

	"physicscore/pkg/fixedpoint"
)

func lowMetrics() Metrics {
	return Metrics{
		Entropy:       fixedpoint.FromFloat(0.1),
		CV:            fixedpoint.FromFloat(0.05),
		TemporalDecay: fixedpoint.FromFloat(0.1),
	}
}

func TestTargetModeAllLowIsC0(t *testing.T) {
	if got := targetMode(lowMetrics()); got != ModeC0 {
		t.Fatalf("expected ModeC0 for all-low metrics, got %v (%s)", got, got.Name())
	}
}

func TestTargetModeHighEntropyOnlyIsC8(t *testing.T) {
	m := lowMetrics()
	m.Entropy = fixedpoint.FromFloat(0.9)
	if got := targetMode(m); got != ModeC8 {
		t.Fatalf("expected ModeC8 for high entropy only, got %v (%s)", got, got.Name())
	}
}

func TestTargetModeFullInferenceIsC7(t *testing.T) {
	m := Metrics{
		Entropy:       fixedpoint.FromFloat(0.1),  // low, L2 off
		CV:            fixedpoint.FromFloat(0.9),  // high, L5 on
		TemporalDecay: fixedpoint.FromFloat(0.9),  // high AND med, L3+L6 on
	}
	if got := targetMode(m); got != ModeC7 {
		t.Fatalf("expected ModeC7 (full inference), got %v (%s)", got, got.Name())
	}
}

func TestUpdateRequiresHysteresisTicksBeforeCommitting(t *testing.T) {
	state := NewState(ModeC0)
	m := lowMetrics()
	m.Entropy = fixedpoint.FromFloat(0.9) // targets C8

	for i := 0; i < HysteresisTicks-1; i++ {
		Update(m, state)
		if state.CurrentMode != ModeC0 {
			t.Fatalf("expected mode to remain C0 before hysteresis threshold, tick %d", i)
		}
	}
	Update(m, state)
	if state.CurrentMode != ModeC8 {
		t.Fatalf("expected mode to commit to C8 after %d consecutive votes", HysteresisTicks)
	}
	if state.HysteresisCounter != 0 {
		t.Fatalf("expected hysteresis counter reset after commit, got %d", state.HysteresisCounter)
	}
}

func TestUpdateResetsHysteresisOnTargetChange(t *testing.T) {
	state := NewState(ModeC0)
	highEntropy := lowMetrics()
	highEntropy.Entropy = fixedpoint.FromFloat(0.9)

	Update(highEntropy, state)
	Update(highEntropy, state)
	if state.HysteresisCounter != 2 {
		t.Fatalf("expected counter at 2, got %d", state.HysteresisCounter)
	}

	Update(lowMetrics(), state) // target flips back to C0
	if state.HysteresisCounter != 1 {
		t.Fatalf("expected counter reset to 1 on target change, got %d", state.HysteresisCounter)
	}
	if state.PendingMode != ModeC0 {
		t.Fatalf("expected pending mode to track the new target")
	}
}

func TestApplyModeDecodesBits(t *testing.T) {
	state := NewState(ModeC15)
	cfg := ApplyMode(state)
	if !cfg.RollingWindowEnabled || !cfg.LinearDecayEnabled || !cfg.WindowInferenceEnabled || !cfg.DecayInferenceEnabled {
		t.Fatalf("expected all loops enabled for C15, got %+v", cfg)
	}

	state2 := NewState(ModeC4)
	cfg2 := ApplyMode(state2)
	if cfg2.RollingWindowEnabled || !cfg2.LinearDecayEnabled || cfg2.WindowInferenceEnabled || cfg2.DecayInferenceEnabled {
		t.Fatalf("expected only linear decay enabled for C4, got %+v", cfg2)
	}
}

func TestModeNameUnknown(t *testing.T) {
	if got := Mode(0xFF).Name(); got != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range mode, got %s", got)
	}
}
