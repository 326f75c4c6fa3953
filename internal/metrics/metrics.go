// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package metrics assembles a point-in-time snapshot of the physics core's
// internal state into a flat record, and writes that record as CSV (full
// and reduced forms) or human-readable text.
package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"physicscore/internal/dict"
	"physicscore/internal/heartbeat"
	"physicscore/internal/inference"
	"physicscore/internal/modeselect"
	"physicscore/internal/physics/hotcache"
	"physicscore/internal/physics/window"
)

// LoopFlags records which of the seven DoE loops are active. L1 and L4 are
// carried as permanently enabled per the architecture's DoE findings; L2,
// L3, L5, L6 come from the current mode-selector configuration; L7 is
// always on.
type LoopFlags struct {
	HeatTracking      bool // L1, always on
	RollingWindow     bool // L2
	LinearDecay       bool // L3
	Pipelining        bool // L4, always on
	WindowInference    bool // L5
	DecayInference    bool // L6
	AdaptiveHeartrate bool // L7, always on
}

// LoopFlagsFromMode builds LoopFlags from the mode selector's current
// configuration, filling in the three permanently-enabled loops.
func LoopFlagsFromMode(cfg modeselect.Config) LoopFlags {
	return LoopFlags{
		HeatTracking:      true,
		RollingWindow:     cfg.RollingWindowEnabled,
		LinearDecay:       cfg.LinearDecayEnabled,
		Pipelining:        true,
		WindowInference:    cfg.WindowInferenceEnabled,
		DecayInference:    cfg.DecayInferenceEnabled,
		AdaptiveHeartrate: true,
	}
}

// Sources is every live component a Snapshot is built from.
type Sources struct {
	Dict      *dict.Dictionary
	Window    *window.Window
	Cache     *hotcache.Cache
	Heartbeat *heartbeat.Driver
	Inference inference.Outputs
	Loops     LoopFlags

	WorkloadDuration time.Duration
	CPUTempDeltaC    int32
	CPUFreqDeltaMHz  int32
	MemoryAllocated  uint64
}

// Metrics is one point-in-time snapshot, mirroring the original's DoE
// metrics row.
type Metrics struct {
	Timestamp string

	TotalLookups uint32

	CacheHits        uint64
	CacheHitPercent  float64
	BucketHits       uint64
	BucketHitPercent float64

	CacheHitLatencyNs     int64
	CacheHitStddevNs      int64
	BucketSearchLatencyNs int64
	BucketSearchStddevNs  int64

	PredictionsTotal       uint64
	PredictionsCorrect     uint64
	PredictionAccuracyPct  float64
	CachePromotions        uint64
	CacheEvictions         uint64

	WindowDiversityPercent  float64
	WindowFinalSizeBytes    uint32
	RollingWindowWidth      uint32
	TotalExecutions         uint64
	WindowVarianceQ48       uint64

	DecaySlope      float64
	TotalHeat       uint64
	HotWordCount    uint64
	StaleWordCount  uint64
	StaleWordRatio  float64
	AvgWordHeat     float64

	TickCount         uint64
	TickTargetNs      uint64
	InferenceRunCount uint64
	EarlyExitCount    uint64

	PrefetchAccuracyPercent   float64
	PrefetchAttempts          uint64
	PrefetchHits              uint64
	WindowTuningChecks        uint64
	FinalEffectiveWindowSize  uint32

	WorkloadDurationNs int64
	TotalRuntimeMs     uint64
	WordsExecuted      uint64
	DictionaryLookups  uint64
	MemoryAllocatedBytes uint64

	CPUTempDeltaCQ48  int64
	CPUFreqDeltaMHzQ48 int64

	Loops LoopFlags

	HotwordsCacheEnabled bool
	PipeliningEnabled    bool
}

// NowTimestamp renders the current time as an ISO-8601 timestamp, matching
// the "YYYY-MM-DDTHH:MM:SS" format used by the original text/CSV writers.
func NowTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05")
}

// Snapshot assembles a Metrics record from the live component sources.
func Snapshot(s Sources, timestamp string) Metrics {
	m := Metrics{Timestamp: timestamp, Loops: s.Loops}

	if s.Cache != nil {
		stats := s.Cache.StatsSnapshot()
		m.TotalLookups = uint32(stats.TotalLookups)
		m.CacheHits = stats.CacheHits
		m.BucketHits = stats.BucketHits
		m.CachePromotions = stats.Promotions
		m.CacheEvictions = stats.Evictions
		if stats.TotalLookups > 0 {
			m.CacheHitPercent = 100 * float64(stats.CacheHits) / float64(stats.TotalLookups)
			m.BucketHitPercent = 100 * float64(stats.BucketHits) / float64(stats.TotalLookups)
		}
		m.CacheHitLatencyNs = stats.CacheHitLatency.Mean().ToInt()
		m.BucketSearchLatencyNs = stats.BucketSearchLatency.Mean().ToInt()
		m.HotwordsCacheEnabled = true
	}

	if s.Window != nil {
		m.WindowDiversityPercent = float64(s.Window.DiversityPercent())
		m.RollingWindowWidth = window.Size
		m.TotalExecutions = s.Window.TotalExecutions()
		m.FinalEffectiveWindowSize = s.Window.EffectiveWindowSize()
		m.WindowFinalSizeBytes = m.FinalEffectiveWindowSize * 4 // uint32 word IDs
	}

	if s.Dict != nil {
		var totalHeat, hotCount, staleCount uint64
		var predAttempts, predHits uint64
		var wordCount uint64
		s.Dict.ForEach(func(e *dict.Entry) {
			wordCount++
			h := e.Metadata.Heat().ToInt()
			if h < 0 {
				h = 0
			}
			totalHeat += uint64(h)
			if h >= hotcache.PromotionHeatThreshold {
				hotCount++
			} else if h < hotcache.PromotionHeatThreshold/2 {
				staleCount++
			}
			a, hits, _ := e.Transitions.Stats()
			predAttempts += a
			predHits += hits
		})
		m.TotalHeat = totalHeat
		m.HotWordCount = hotCount
		m.StaleWordCount = staleCount
		if wordCount > 0 {
			m.StaleWordRatio = float64(staleCount) / float64(wordCount)
			m.AvgWordHeat = float64(totalHeat) / float64(wordCount)
		}
		m.PredictionsTotal = predAttempts
		m.PredictionsCorrect = predHits
		if predAttempts > 0 {
			m.PredictionAccuracyPct = 100 * float64(predHits) / float64(predAttempts)
			m.PrefetchAccuracyPercent = m.PredictionAccuracyPct
		}
		m.PrefetchAttempts = predAttempts
		m.PrefetchHits = predHits
		m.DictionaryLookups = uint64(m.TotalLookups)
		m.PipeliningEnabled = true
	}

	if s.Heartbeat != nil {
		m.TickCount = s.Heartbeat.TickCount()
		m.TickTargetNs = uint64(s.Heartbeat.Interval().Nanoseconds())
	}

	m.DecaySlope = s.Inference.AdaptiveDecaySlope.ToFloat()
	m.WindowVarianceQ48 = uint64(s.Inference.WindowVarianceQ48)
	if s.Inference.EarlyExited {
		m.EarlyExitCount = 1
	} else {
		m.InferenceRunCount = 1
	}

	m.WorkloadDurationNs = s.WorkloadDuration.Nanoseconds()
	m.TotalRuntimeMs = uint64(s.WorkloadDuration.Milliseconds())
	m.CPUTempDeltaCQ48 = int64(s.CPUTempDeltaC) << 16
	m.CPUFreqDeltaMHzQ48 = int64(s.CPUFreqDeltaMHz) << 16
	m.MemoryAllocatedBytes = s.MemoryAllocated
	m.WordsExecuted = m.TotalExecutions

	return m
}

var fullCSVHeader = []string{
	"timestamp", "total_lookups", "cache_hits", "cache_hit_percent", "bucket_hits",
	"bucket_hit_percent", "cache_hit_latency_ns", "cache_hit_stddev_ns",
	"bucket_search_latency_ns", "bucket_search_stddev_ns", "context_predictions_total",
	"context_correct", "context_accuracy_percent", "cache_promotions", "cache_demotions",
	"window_diversity_percent", "window_final_size_bytes", "rolling_window_width",
	"total_executions", "window_variance_q48", "decay_slope", "total_heat",
	"hot_word_count", "stale_word_count", "stale_word_ratio", "avg_word_heat",
	"tick_count", "tick_target_ns", "inference_run_count", "early_exit_count",
	"prefetch_accuracy_percent", "prefetch_attempts", "prefetch_hits",
	"workload_duration_ns", "total_runtime_ms", "words_executed",
}

// WriteCSVHeader writes the full-form CSV header row.
func WriteCSVHeader(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	return cw.Write(fullCSVHeader)
}

// WriteCSVRow writes one full-form CSV row.
func WriteCSVRow(w io.Writer, m Metrics) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	row := []string{
		m.Timestamp,
		fmt.Sprint(m.TotalLookups),
		fmt.Sprint(m.CacheHits),
		fmt.Sprintf("%.4f", m.CacheHitPercent),
		fmt.Sprint(m.BucketHits),
		fmt.Sprintf("%.4f", m.BucketHitPercent),
		fmt.Sprint(m.CacheHitLatencyNs),
		fmt.Sprint(m.CacheHitStddevNs),
		fmt.Sprint(m.BucketSearchLatencyNs),
		fmt.Sprint(m.BucketSearchStddevNs),
		fmt.Sprint(m.PredictionsTotal),
		fmt.Sprint(m.PredictionsCorrect),
		fmt.Sprintf("%.4f", m.PredictionAccuracyPct),
		fmt.Sprint(m.CachePromotions),
		fmt.Sprint(m.CacheEvictions),
		fmt.Sprintf("%.4f", m.WindowDiversityPercent),
		fmt.Sprint(m.WindowFinalSizeBytes),
		fmt.Sprint(m.RollingWindowWidth),
		fmt.Sprint(m.TotalExecutions),
		fmt.Sprint(m.WindowVarianceQ48),
		fmt.Sprintf("%.6f", m.DecaySlope),
		fmt.Sprint(m.TotalHeat),
		fmt.Sprint(m.HotWordCount),
		fmt.Sprint(m.StaleWordCount),
		fmt.Sprintf("%.4f", m.StaleWordRatio),
		fmt.Sprintf("%.4f", m.AvgWordHeat),
		fmt.Sprint(m.TickCount),
		fmt.Sprint(m.TickTargetNs),
		fmt.Sprint(m.InferenceRunCount),
		fmt.Sprint(m.EarlyExitCount),
		fmt.Sprintf("%.4f", m.PrefetchAccuracyPercent),
		fmt.Sprint(m.PrefetchAttempts),
		fmt.Sprint(m.PrefetchHits),
		fmt.Sprint(m.WorkloadDurationNs),
		fmt.Sprint(m.TotalRuntimeMs),
		fmt.Sprint(m.WordsExecuted),
	}
	return cw.Write(row)
}

var reducedCSVHeader = []string{
	"timestamp", "total_lookups", "cache_hit_percent", "bucket_hit_percent",
	"context_accuracy_percent", "window_diversity_percent", "rolling_window_width",
	"total_executions", "decay_slope", "total_heat", "hot_word_count",
	"stale_word_ratio", "avg_word_heat", "tick_count", "inference_run_count",
	"early_exit_count", "prefetch_accuracy_percent", "words_executed",
	"total_runtime_ms", "memory_allocated_bytes",
}

// WriteReducedCSVHeader writes the reduced ("James Law") 20-column header.
func WriteReducedCSVHeader(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	return cw.Write(reducedCSVHeader)
}

// WriteReducedCSVRow writes one reduced-form CSV row.
func WriteReducedCSVRow(w io.Writer, m Metrics) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	row := []string{
		m.Timestamp,
		fmt.Sprint(m.TotalLookups),
		fmt.Sprintf("%.4f", m.CacheHitPercent),
		fmt.Sprintf("%.4f", m.BucketHitPercent),
		fmt.Sprintf("%.4f", m.PredictionAccuracyPct),
		fmt.Sprintf("%.4f", m.WindowDiversityPercent),
		fmt.Sprint(m.RollingWindowWidth),
		fmt.Sprint(m.TotalExecutions),
		fmt.Sprintf("%.6f", m.DecaySlope),
		fmt.Sprint(m.TotalHeat),
		fmt.Sprint(m.HotWordCount),
		fmt.Sprintf("%.4f", m.StaleWordRatio),
		fmt.Sprintf("%.4f", m.AvgWordHeat),
		fmt.Sprint(m.TickCount),
		fmt.Sprint(m.InferenceRunCount),
		fmt.Sprint(m.EarlyExitCount),
		fmt.Sprintf("%.4f", m.PrefetchAccuracyPercent),
		fmt.Sprint(m.WordsExecuted),
		fmt.Sprint(m.TotalRuntimeMs),
		fmt.Sprint(m.MemoryAllocatedBytes),
	}
	return cw.Write(row)
}

// PrintText writes a human-readable rendering of m, for debugging.
func PrintText(w io.Writer, m Metrics) {
	fmt.Fprintf(w, "=== physics metrics @ %s ===\n", m.Timestamp)
	fmt.Fprintf(w, "lookups: total=%d cache_hit=%.2f%% bucket_hit=%.2f%%\n",
		m.TotalLookups, m.CacheHitPercent, m.BucketHitPercent)
	fmt.Fprintf(w, "prefetch: attempts=%d hits=%d accuracy=%.2f%%\n",
		m.PrefetchAttempts, m.PrefetchHits, m.PrefetchAccuracyPercent)
	fmt.Fprintf(w, "window: diversity=%.2f%% width=%d effective=%d executions=%d\n",
		m.WindowDiversityPercent, m.RollingWindowWidth, m.FinalEffectiveWindowSize, m.TotalExecutions)
	fmt.Fprintf(w, "heat: total=%d hot=%d stale=%d (ratio=%.2f) avg=%.2f decay_slope=%.6f\n",
		m.TotalHeat, m.HotWordCount, m.StaleWordCount, m.StaleWordRatio, m.AvgWordHeat, m.DecaySlope)
	fmt.Fprintf(w, "heartbeat: ticks=%d target_ns=%d inference_runs=%d early_exits=%d\n",
		m.TickCount, m.TickTargetNs, m.InferenceRunCount, m.EarlyExitCount)
	fmt.Fprintf(w, "loops: L1=%v L2=%v L3=%v L4=%v L5=%v L6=%v L7=%v\n",
		m.Loops.HeatTracking, m.Loops.RollingWindow, m.Loops.LinearDecay, m.Loops.Pipelining,
		m.Loops.WindowInference, m.Loops.DecayInference, m.Loops.AdaptiveHeartrate)
}
