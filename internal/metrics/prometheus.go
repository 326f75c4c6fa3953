// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter publishes a live Metrics snapshot as Prometheus gauges/counters.
// Unlike a package-level singleton, each Exporter owns its own registry so
// multiple physics-core instances in one process (tests included) never
// collide on metric registration.
type Exporter struct {
	registry *prometheus.Registry

	totalLookups     prometheus.Counter
	cacheHitPercent  prometheus.Gauge
	bucketHitPercent prometheus.Gauge
	windowDiversity  prometheus.Gauge
	totalHeat        prometheus.Gauge
	hotWordCount     prometheus.Gauge
	staleWordRatio   prometheus.Gauge
	decaySlope       prometheus.Gauge
	prefetchAccuracy prometheus.Gauge
	inferenceRuns    prometheus.Counter
	earlyExits       prometheus.Counter
	tickCount        prometheus.Counter
	lookupLatency    prometheus.Histogram

	server *http.Server
}

// NewExporter constructs an Exporter with its own registry, registering
// every metric eagerly.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		totalLookups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "physics_dictionary_lookups_total",
			Help: "Total dictionary lookups observed.",
		}),
		cacheHitPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_hotcache_hit_percent",
			Help: "Hot-word cache hit rate, percent.",
		}),
		bucketHitPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_bucket_hit_percent",
			Help: "Dictionary bucket-search fallback hit rate, percent.",
		}),
		windowDiversity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_window_diversity_percent",
			Help: "Rolling-window pattern diversity, percent.",
		}),
		totalHeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_total_heat",
			Help: "Aggregate execution heat across the dictionary.",
		}),
		hotWordCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_hot_word_count",
			Help: "Words whose heat is above the promotion threshold.",
		}),
		staleWordRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_stale_word_ratio",
			Help: "Fraction of dictionary words considered stale.",
		}),
		decaySlope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_decay_slope",
			Help: "Inferred exponential heat-decay slope.",
		}),
		prefetchAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "physics_prefetch_accuracy_percent",
			Help: "Speculative prefetch hit rate, percent.",
		}),
		inferenceRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "physics_inference_runs_total",
			Help: "Full inference-engine passes executed.",
		}),
		earlyExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "physics_inference_early_exits_total",
			Help: "Inference-engine passes skipped via the ANOVA early exit.",
		}),
		tickCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "physics_heartbeat_ticks_total",
			Help: "Heartbeat driver ticks processed.",
		}),
		lookupLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "physics_lookup_latency_ns",
			Help:    "Dictionary lookup latency, nanoseconds.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 10),
		}),
	}
	e.registry.MustRegister(
		e.totalLookups, e.cacheHitPercent, e.bucketHitPercent, e.windowDiversity,
		e.totalHeat, e.hotWordCount, e.staleWordRatio, e.decaySlope,
		e.prefetchAccuracy, e.inferenceRuns, e.earlyExits, e.tickCount, e.lookupLatency,
	)
	return e
}

// Observe folds one Metrics snapshot into the exporter's gauges and, when
// lookupLatencyNs is positive, the lookup-latency histogram. It does not
// touch the counters; those advance only through IncLookup,
// IncInferenceRun, IncEarlyExit and IncTick.
func (e *Exporter) Observe(m Metrics, lookupLatencyNs float64) {
	e.cacheHitPercent.Set(m.CacheHitPercent)
	e.bucketHitPercent.Set(m.BucketHitPercent)
	e.windowDiversity.Set(m.WindowDiversityPercent)
	e.totalHeat.Set(float64(m.TotalHeat))
	e.hotWordCount.Set(float64(m.HotWordCount))
	e.staleWordRatio.Set(m.StaleWordRatio)
	e.decaySlope.Set(m.DecaySlope)
	e.prefetchAccuracy.Set(m.PrefetchAccuracyPercent)
	if lookupLatencyNs > 0 {
		e.lookupLatency.Observe(lookupLatencyNs)
	}
}

// IncLookup records a single dictionary lookup.
func (e *Exporter) IncLookup() { e.totalLookups.Inc() }

// IncInferenceRun records a full (non-early-exited) inference pass.
func (e *Exporter) IncInferenceRun() { e.inferenceRuns.Inc() }

// IncEarlyExit records an ANOVA-gated early exit.
func (e *Exporter) IncEarlyExit() { e.earlyExits.Inc() }

// IncTick records one heartbeat tick.
func (e *Exporter) IncTick() { e.tickCount.Inc() }

// Handler returns the HTTP handler that serves this exporter's /metrics
// endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve starts a dedicated HTTP server exposing /metrics on addr. It runs
// in a background goroutine; call Shutdown to stop it.
func (e *Exporter) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = e.server.ListenAndServe()
	}()
}

// Shutdown stops the dedicated metrics HTTP server, if one was started.
func (e *Exporter) Shutdown() {
	if e.server != nil {
		_ = e.server.Close()
	}
}
