// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package inference infers two adaptive tuning parameters — rolling-window
// width and heat decay slope — from a fresh heat trajectory, with an
// ANOVA-style early exit when variance hasn't moved enough to justify the
// cost of a full pass.
package inference

import (
	"errors"
	"fmt"

	"physicscore/internal/dict"
	"physicscore/internal/physics/window"
	"physicscore/pkg/fixedpoint"
)

const (
	// varianceStabilityThreshold is 0.05 in Q48.16 raw units (0.05*65536,
	// truncated): the maximum relative variance delta for which a full
	// inference pass is skipped.
	varianceStabilityThreshold fixedpoint.Q = 3276

	// windowScanStep is the window-size increment swept while searching
	// for a variance inflection point.
	windowScanStep = 64

	// minChunksForLevene is the minimum chunk count required before
	// Levene's test is considered statistically meaningful.
	minChunksForLevene = 3

	// maxDecaySlopeInt bounds Validate's sanity check on the inferred slope.
	maxDecaySlopeInt = 100
)

var leveneCriticalValue = fixedpoint.FromFloat(6.5)

var (
	ErrWindowWidthOutOfRange = errors.New("inference: adaptive window width out of range")
	ErrDecaySlopeOutOfRange  = errors.New("inference: decay slope out of range")
	ErrFitQualityOutOfRange  = errors.New("inference: fit quality out of range")
)

// ModeConfig gates which inference phases run, mirroring the L5/L6 bits of
// the mode selector. A nil ModeConfig means legacy mode: both phases always
// run.
type ModeConfig struct {
	WindowInferenceEnabled     bool
	DecaySlopeInferenceEnabled bool
}

// Outputs holds the tuning parameters and diagnostics produced by Run. The
// caller feeds its previous Outputs back in as a baseline; fields not
// recomputed this pass (because a phase is gated off, or because of an
// early exit) are carried through unchanged.
type Outputs struct {
	AdaptiveWindowWidth uint32
	AdaptiveDecaySlope  fixedpoint.Q
	WindowVarianceQ48   fixedpoint.Q
	SlopeFitQualityQ48  fixedpoint.Q
	EarlyExited         bool
}

// extractHeatTrajectory linearizes the rolling window's recent execution
// history and resolves each word ID to its current heat, bounded to the
// window's effective size once warm.
func extractHeatTrajectory(w *window.Window, d *dict.Dictionary) []fixedpoint.Q {
	ids := make([]uint32, window.Size)
	exported := w.ExportExecutionHistory(ids)
	if exported == 0 {
		return nil
	}

	span := exported
	if w.IsWarm() {
		span = uint64(w.EffectiveWindowSize())
	}
	if span > exported {
		span = exported
	}
	if span == 0 {
		return nil
	}

	start := exported - span
	trajectory := make([]fixedpoint.Q, span)
	for i := uint64(0); i < span; i++ {
		wordID := ids[start+i]
		if e := d.ByID(wordID); e != nil {
			trajectory[i] = e.Metadata.Heat()
		}
	}
	return trajectory
}

// hasVarianceStabilized reports whether the relative change between
// current and last variance is small enough to skip a full inference pass.
// A zero last variance (first run) never stabilizes.
func hasVarianceStabilized(current, last fixedpoint.Q) bool {
	if last == 0 {
		return false
	}
	delta := current - last
	if delta < 0 {
		delta = -delta
	}
	ratio := fixedpoint.Div(delta, last)
	return ratio <= varianceStabilityThreshold
}

// computeLeveneStatistic computes Levene's W statistic for equality of
// variance across chunkVariances, one value per disjoint chunk of the
// trajectory.
func computeLeveneStatistic(chunkVariances []fixedpoint.Q, chunkSize uint32) fixedpoint.Q {
	numChunks := len(chunkVariances)
	if numChunks < 2 {
		return 0
	}

	medianVar := fixedpoint.Median(chunkVariances)

	z := make([]fixedpoint.Q, numChunks)
	for i, v := range chunkVariances {
		d := v - medianVar
		if d < 0 {
			d = -d
		}
		z[i] = d
	}

	zBar := fixedpoint.Mean(z)
	var sumSqDiff fixedpoint.Q
	for _, zi := range z {
		d := zi - zBar
		if d < 0 {
			d = -d
		}
		sumSqDiff = fixedpoint.Add(sumSqDiff, fixedpoint.Mul(d, d))
	}

	numerator := fixedpoint.Mul(
		fixedpoint.FromInt(int64(numChunks-1)),
		fixedpoint.Mul(fixedpoint.FromInt(int64(chunkSize)), sumSqDiff),
	)

	zVariance := fixedpoint.Variance(z)
	denominator := fixedpoint.Mul(fixedpoint.FromInt(int64(numChunks)), zVariance)

	if denominator <= 0 {
		return 0
	}
	return fixedpoint.Div(numerator, denominator)
}

// findVarianceInflection scans ascending window sizes (in windowScanStep
// increments) for the smallest size at which Levene's test can no longer
// reject the hypothesis that chunk variances are equal — the minimum
// window that has "seen enough" to be statistically stable.
func findVarianceInflection(trajectory []fixedpoint.Q) uint32 {
	length := len(trajectory)
	if length == 0 {
		return window.Size / 2
	}

	minSize := uint32(window.AdaptiveMinWindowSize)
	maxSize := uint32(length)
	if maxSize > window.Size {
		maxSize = window.Size
	}

	for size := minSize; size <= maxSize; size += windowScanStep {
		numChunks := length / int(size)
		if numChunks < minChunksForLevene {
			continue
		}

		chunkVars := make([]fixedpoint.Q, numChunks)
		for i := 0; i < numChunks; i++ {
			start := i * int(size)
			chunkVars[i] = fixedpoint.Variance(trajectory[start : start+int(size)])
		}

		w := computeLeveneStatistic(chunkVars, size)
		if w <= leveneCriticalValue {
			return size
		}
	}
	return maxSize
}

// inferDecaySlope fits ln(heat[t]) = a - slope*t via closed-form linear
// regression and returns the (always non-negative) magnitude of slope in
// Q48.16. Entries with zero heat are skipped, matching a log of zero being
// undefined.
func inferDecaySlope(trajectory []fixedpoint.Q) fixedpoint.Q {
	n := len(trajectory)
	if n < 2 {
		return 0
	}

	sumT := uint64(n*(n-1)) / 2
	sumTSq := uint64(n*(n-1)*(2*n-1)) / 6

	var sumLogHeat, sumTLogHeat fixedpoint.Q
	for t := 0; t < n; t++ {
		if trajectory[t] == 0 {
			continue
		}
		logHeat := fixedpoint.Ln(trajectory[t])
		sumLogHeat = fixedpoint.Add(sumLogHeat, logHeat)
		sumTLogHeat = fixedpoint.Add(sumTLogHeat, fixedpoint.Mul(fixedpoint.FromInt(int64(t)), logHeat))
	}

	nTimesSumTLog := int64(fixedpoint.Mul(fixedpoint.FromInt(int64(n)), sumTLogHeat))
	sumTTimesSumLog := int64(fixedpoint.Mul(fixedpoint.FromInt(int64(sumT)), sumLogHeat))
	numeratorSigned := nTimesSumTLog - sumTTimesSumLog

	numerator := numeratorSigned
	if numerator < 0 {
		numerator = -numerator
	}

	denominator := int64(uint64(n)*sumTSq) - int64(sumT*sumT)
	if denominator == 0 {
		denominator = 1
	}

	// numerator is already Q48.16-scaled; dividing by the raw (unscaled)
	// denominator preserves that scaling, so this is plain integer
	// division rather than fixedpoint.Div.
	return fixedpoint.Q(numerator / denominator)
}

// computeFitQuality is a fixed diagnostic placeholder: the original never
// finished replacing it with a real R² computation.
func computeFitQuality(length int) fixedpoint.Q {
	if length < 2 {
		return fixedpoint.FromInt(1)
	}
	return fixedpoint.FromFloat(0.8)
}

// Run executes one inference pass: extract a fresh heat trajectory, check
// the ANOVA-style early exit, then (subject to mode gating) infer window
// width and decay slope. prev supplies the baseline that ungated or
// early-exited fields carry through from.
func Run(w *window.Window, d *dict.Dictionary, prev Outputs, mode *ModeConfig) Outputs {
	trajectory := extractHeatTrajectory(w, d)
	if len(trajectory) < 2 {
		out := prev
		out.EarlyExited = true
		return out
	}

	currentVariance := fixedpoint.Variance(trajectory)
	if hasVarianceStabilized(currentVariance, prev.WindowVarianceQ48) {
		out := prev
		out.EarlyExited = true
		return out
	}

	inferredWidth := prev.AdaptiveWindowWidth
	if mode == nil || mode.WindowInferenceEnabled {
		inferredWidth = findVarianceInflection(trajectory)
	}

	inferredSlope := prev.AdaptiveDecaySlope
	if mode == nil || mode.DecaySlopeInferenceEnabled {
		inferredSlope = inferDecaySlope(trajectory)
	}

	return Outputs{
		AdaptiveWindowWidth: inferredWidth,
		AdaptiveDecaySlope:  inferredSlope,
		WindowVarianceQ48:   currentVariance,
		SlopeFitQualityQ48:  computeFitQuality(len(trajectory)),
		EarlyExited:         false,
	}
}

// Validate sanity-checks an Outputs value's ranges.
func Validate(out Outputs) error {
	if out.AdaptiveWindowWidth < window.AdaptiveMinWindowSize || out.AdaptiveWindowWidth > window.Size {
		return ErrWindowWidthOutOfRange
	}
	if out.AdaptiveDecaySlope == 0 || out.AdaptiveDecaySlope > fixedpoint.FromInt(maxDecaySlopeInt) {
		return ErrDecaySlopeOutOfRange
	}
	if out.SlopeFitQualityQ48 > fixedpoint.FromInt(1) {
		return ErrFitQualityOutOfRange
	}
	return nil
}

// String renders a diagnostic one-liner, for logs and the dashboard feed.
func String(out Outputs) string {
	state := "(full)"
	if out.EarlyExited {
		state = "(cached)"
	}
	return fmt.Sprintf("window=%d var=%.6f slope=%.6f quality=%.6f %s",
		out.AdaptiveWindowWidth,
		out.WindowVarianceQ48.ToFloat(),
		out.AdaptiveDecaySlope.ToFloat(),
		out.SlopeFitQualityQ48.ToFloat(),
		state)
}
