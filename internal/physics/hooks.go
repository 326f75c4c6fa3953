// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package physics is the VM-facing facade: PreExecute, PostExecute, and
// OnLookup are the only surface an embedding interpreter loop needs to
// call. Everything else — heat tracking, the rolling window, hot-word
// caching, transition prediction, inference, mode selection, and the
// heartbeat that drives periodic passes — lives behind these three
// calls, exactly as physics_execution_hooks.h documents: "Hide ALL
// physics machinery behind two simple function calls."
package physics

import (
	"log/slog"
	"sync"
	"time"

	"physicscore/internal/dict"
	"physicscore/internal/heartbeat"
	"physicscore/internal/host"
	"physicscore/internal/inference"
	"physicscore/internal/modeselect"
	"physicscore/internal/physics/hotcache"
	"physicscore/internal/physics/window"
	"physicscore/pkg/fixedpoint"
)

// Config carries the tuning knobs a Core needs beyond each component's
// own compiled-in defaults.
type Config struct {
	DecaySlope        fixedpoint.Q // heat units decayed per elapsed microsecond, Q48.16
	DecayMinInterval  time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig mirrors the original's DECAY_RATE_PER_US_Q16-equivalent
// defaults: a gentle per-tick decay, gated to at most once per
// millisecond per word.
func DefaultConfig() Config {
	return Config{
		DecaySlope:        fixedpoint.FromFloat(0.02),
		DecayMinInterval:  time.Millisecond,
		HeartbeatInterval: 250 * time.Millisecond,
	}
}

// heartbeatDecayBatch is HEARTBEAT_DECAY_BATCH: the number of dictionary
// entries the background tick decays per pass, starting from the decay
// cursor.
const heartbeatDecayBatch = 64

// heartbeatInferenceFrequency is HEARTBEAT_INFERENCE_FREQUENCY: inference
// only runs once every this many ticks; other ticks carry the previous
// Outputs through unchanged.
const heartbeatInferenceFrequency = 5000

// Adaptive heartrate (L7) tick-interval multipliers and the nominal-
// interval caps they're bounded by.
const (
	heartrateSlowdownFactor = 1.25
	heartrateSpeedupFactor  = 0.8
	heartrateMaxMultiple    = 4.0
	heartrateMinMultiple    = 0.25
)

// Core aggregates every physics-core component and exposes the
// three-hook VM surface.
type Core struct {
	logger *slog.Logger
	cfg    Config

	Dict      *dict.Dictionary
	Window    *window.Window
	Cache     *hotcache.Cache
	Heartbeat *heartbeat.Driver
	ModeState *modeselect.State
	Host      *host.Services

	mu                       sync.Mutex
	lastWord                 *dict.Entry
	pendingPrediction        uint32
	havePendingPrediction    bool
	inferenceOut             inference.Outputs
	inferenceRuns            uint64
	earlyExits               uint64
	ticksSinceInference      uint64
	decayCursor              uint32
	nominalHeartbeatInterval time.Duration
}

// NewCore wires a full physics core against a fresh dictionary, rolling
// window, hot-word cache, and mode-selector state, driven by a heartbeat
// at cfg.HeartbeatInterval.
func NewCore(logger *slog.Logger, cfg Config) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Core{
		logger:                   logger,
		cfg:                      cfg,
		Dict:                     dict.New(logger),
		Window:                   window.New(),
		Cache:                    hotcache.New(),
		ModeState:                modeselect.NewState(modeselect.ModeC15),
		Host:                     host.NewHosted(),
		nominalHeartbeatInterval: cfg.HeartbeatInterval,
		decayCursor:              1, // word ID 0 is reserved as "no word"
	}
	c.Heartbeat = heartbeat.New(cfg.HeartbeatInterval, c.Tick, heartbeat.WithLogger(logger), heartbeat.WithOnStop(c.Tick))
	return c
}

// OnLookup resolves name to its dictionary entry, consulting the
// hot-word cache first and falling back to the dictionary's own lookup
// strategy, then promoting the entry into cache if its heat has crossed
// the promotion threshold. This is the only path through which a VM
// should ever resolve a word name to an entry.
func (c *Core) OnLookup(name string) (*dict.Entry, bool) {
	if cached, ok := c.Cache.Lookup(name, 0); ok {
		return cached.(*dict.Entry), true
	}

	start := time.Now()
	e := c.Dict.FindWord(name)
	latencyNs := fixedpoint.FromInt(time.Since(start).Nanoseconds())

	if e == nil {
		c.Cache.RecordMiss()
		return nil, false
	}
	c.Cache.RecordBucketHit(latencyNs)
	if hotcache.ShouldPromote(e) {
		c.Cache.Promote(e)
	}
	return e, true
}

// PreExecute records the canonical-word transition and prefetch-accuracy
// outcome from the previously executed word, appends word to the rolling
// window, and arms a fresh prediction for whatever comes next — issuing a
// speculative hot-cache promotion of the predicted successor when the
// speculation gate (PredictNext's ok) is met.
func (c *Core) PreExecute(word *dict.Entry) {
	c.mu.Lock()
	prev := c.lastWord
	pending, havePending := c.pendingPrediction, c.havePendingPrediction
	c.mu.Unlock()

	if prev != nil {
		prev.Transitions.RecordTransition(word.WordID)
		if havePending {
			prev.Transitions.RecordOutcome(pending == word.WordID)
		}
	}

	predicted, _, ok := word.Transitions.PredictNext()
	if ok {
		if target := c.Dict.ByID(predicted); target != nil {
			word.Transitions.RecordPrefetchIssued()
			if c.Cache.Enabled() {
				c.Cache.Promote(target)
			}
		}
	}

	c.Window.RecordExecution(word.WordID)

	c.mu.Lock()
	c.lastWord = word
	c.pendingPrediction = predicted
	c.havePendingPrediction = ok
	c.mu.Unlock()
}

// PostExecute applies throttled linear decay for the time since the word's
// previous decay, then this execution's heat increment, recomputes the
// word's temperature/mass smoothing, and promotes the word into the
// hot-word cache if warranted.
func (c *Core) PostExecute(word *dict.Entry) {
	word.Metadata.ApplyLinearDecay(c.cfg.DecaySlope, uint32(c.cfg.DecayMinInterval.Nanoseconds()), c.Host.Clock.MonotonicNs())
	word.Metadata.IncrementHeat()
	word.Metadata.Touch()

	if hotcache.ShouldPromote(word) {
		c.Cache.Promote(word)
	}
}

// Start launches the background heartbeat driving periodic passes
// (window service, dictionary reorganization, inference, mode
// selection).
func (c *Core) Start() { c.Heartbeat.Start() }

// Stop halts the heartbeat, running one final synchronous pass first.
func (c *Core) Stop() { c.Heartbeat.Stop() }

// Tick runs one full periodic pass: rolling-window service, dictionary
// adaptive optimization, a bounded background decay sweep, the mode-gated
// inference engine (throttled to once every heartbeatInferenceFrequency
// ticks; a full pass whose outputs fail inference.Validate is logged and
// its window width, decay slope and fit quality are not applied), the L7
// adaptive heartrate adjustment, and the hysteresis-gated
// mode selector. It is the heartbeat's TickFunc, but is also safe to call
// directly for a synchronous one-shot pass.
func (c *Core) Tick(tickNum uint64) {
	c.Window.Service()

	diversityCount := c.Window.MeasureDiversity()
	diversityPercent := c.Window.DiversityPercent()
	c.Dict.AdaptiveOptimizationPass(diversityPercent)

	c.mu.Lock()
	cursor := c.decayCursor
	c.mu.Unlock()
	nextCursor := c.Dict.DecayBatch(cursor, heartbeatDecayBatch, c.cfg.DecaySlope,
		uint32(c.cfg.DecayMinInterval.Nanoseconds()), c.Host.Clock.MonotonicNs())
	c.mu.Lock()
	c.decayCursor = nextCursor
	c.mu.Unlock()

	c.mu.Lock()
	modeCfg := modeselect.ApplyMode(c.ModeState)
	prevOut := c.inferenceOut
	c.ticksSinceInference++
	runInference := c.ticksSinceInference >= heartbeatInferenceFrequency
	if runInference {
		c.ticksSinceInference = 0
	}
	c.mu.Unlock()

	out := prevOut
	if runInference {
		inferenceMode := &inference.ModeConfig{
			WindowInferenceEnabled:     modeCfg.WindowInferenceEnabled,
			DecaySlopeInferenceEnabled: modeCfg.DecayInferenceEnabled,
		}
		out = inference.Run(c.Window, c.Dict, prevOut, inferenceMode)
		if !out.EarlyExited {
			if err := inference.Validate(out); err != nil {
				c.logger.Warn("discarding invalid inference outputs", "error", err, "outputs", inference.String(out))
				out.AdaptiveWindowWidth = prevOut.AdaptiveWindowWidth
				out.AdaptiveDecaySlope = prevOut.AdaptiveDecaySlope
				out.SlopeFitQualityQ48 = prevOut.SlopeFitQualityQ48
			}
		}

		c.mu.Lock()
		c.inferenceOut = out
		if out.EarlyExited {
			c.earlyExits++
		} else {
			c.inferenceRuns++
		}
		c.mu.Unlock()

		c.adjustHeartrate(out.EarlyExited)
	}

	metrics := c.classificationMetrics(out)
	c.mu.Lock()
	modeselect.Update(metrics, c.ModeState)
	c.mu.Unlock()

	c.logger.Debug("physics heartbeat tick complete", "tick", tickNum,
		"diversity_count", diversityCount, "diversity_percent", diversityPercent,
		"ran_inference", runInference, "mode", c.ModeState.CurrentMode.Name())
}

// adjustHeartrate implements L7 adaptive heartrate: the tick interval
// stretches by heartrateSlowdownFactor when inference early-exits (the
// workload's variance is stable, so frequent passes are wasted work) and
// contracts by heartrateSpeedupFactor otherwise, bounded to
// [heartrateMinMultiple, heartrateMaxMultiple] times the nominal interval
// configured at startup.
func (c *Core) adjustHeartrate(earlyExited bool) {
	current := c.Heartbeat.Interval()
	nominal := c.nominalHeartbeatInterval

	var next time.Duration
	if earlyExited {
		next = time.Duration(float64(current) * heartrateSlowdownFactor)
		if cap := time.Duration(float64(nominal) * heartrateMaxMultiple); next > cap {
			next = cap
		}
	} else {
		next = time.Duration(float64(current) * heartrateSpeedupFactor)
		if floor := time.Duration(float64(nominal) * heartrateMinMultiple); next < floor {
			next = floor
		}
	}
	if next != current {
		c.Heartbeat.AdjustInterval(next)
	}
}

// classificationMetrics derives the mode selector's entropy/CV/temporal-
// decay inputs per spec: entropy is the fraction of the rolling window's
// full capacity currently in play (effective_window_size/ROLLING_WINDOW_
// SIZE), cv is one minus the dictionary-wide prefetch hit rate, and
// temporal_decay is the reciprocal of the inferred decay slope, both
// clamped to [0,1] — grounded on doe_metrics.c's metrics_write_james_
// law_csv_row, the only place the original computes these three derived
// quantities from raw counters.
func (c *Core) classificationMetrics(out inference.Outputs) modeselect.Metrics {
	entropy := fixedpoint.Div(fixedpoint.FromInt(int64(c.Window.EffectiveWindowSize())), fixedpoint.FromInt(window.Size))
	if entropy > fixedpoint.One {
		entropy = fixedpoint.One
	} else if entropy < 0 {
		entropy = 0
	}

	attempts, hits := aggregatePrefetchStats(c.Dict)
	var cv fixedpoint.Q
	if attempts > 0 {
		hitRate := fixedpoint.Div(fixedpoint.FromInt(int64(hits)), fixedpoint.FromInt(int64(attempts)))
		cv = fixedpoint.Sub(fixedpoint.One, hitRate)
	} else {
		cv = fixedpoint.FromFloat(0.5)
	}

	temporalDecay := fixedpoint.Div(fixedpoint.One, out.AdaptiveDecaySlope)
	if temporalDecay > fixedpoint.One {
		temporalDecay = fixedpoint.One
	} else if temporalDecay < 0 {
		temporalDecay = 0
	}

	return modeselect.Metrics{
		Entropy:       entropy,
		CV:            cv,
		TemporalDecay: temporalDecay,
	}
}

// aggregatePrefetchStats sums each dictionary entry's prefetch-attempt and
// prefetch-hit counters, the dictionary-wide totals the mode selector's cv
// input is computed from.
func aggregatePrefetchStats(d *dict.Dictionary) (attempts, hits uint64) {
	d.ForEach(func(e *dict.Entry) {
		a, h, _ := e.Transitions.Stats()
		attempts += a
		hits += h
	})
	return
}
