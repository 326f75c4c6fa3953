// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package main provides the entry point for physicsd: a standalone
// process that hosts the adaptive execution-physics core and drives it
// from a stream of executed word names read line-by-line from stdin.
//
// Each line is treated as one word execution: physicsd resolves it
// through the dictionary (registering it on first sight), runs the
// pre/post-execution hooks, and lets the background heartbeat drive the
// rolling window, dictionary reorganization, inference engine, and mode
// selector. Metrics are periodically written to CSV and, if configured,
// published on a Prometheus /metrics endpoint. An optional capsule can be
// loaded from the capsule store at startup; only its payload size is
// logged, and nothing from it is applied to the dictionary or the tuning
// knobs. When no capsule_id is given, a fixed marker capsule is saved to
// the store on shutdown.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"physicscore/internal/capsule"
	"physicscore/internal/metrics"
	"physicscore/internal/modeselect"
	"physicscore/internal/physics"
	"physicscore/pkg/fixedpoint"

	redis "github.com/redis/go-redis/v9"
)

func main() {
	heartbeatInterval := flag.Duration("heartbeat_interval", 250*time.Millisecond, "Period between background physics passes (window service, dictionary reorg, inference, mode selection)")
	decaySlope := flag.Float64("decay_slope", 0.02, "Heat units decayed per elapsed microsecond of idle time, applied at most once per decay_min_interval")
	decayMinInterval := flag.Duration("decay_min_interval", time.Millisecond, "Minimum time between linear-decay applications for a single word")

	entropyHighThreshold := flag.Float64("entropy_high_threshold", 0.75, "Mode selector: entropy (effective rolling-window size over full window size) at or above this enables the rolling-window loop")
	cvHighThreshold := flag.Float64("cv_high_threshold", 0.15, "Mode selector: cv (one minus the dictionary-wide prefetch hit rate) at or above this enables window/decay inference")
	temporalHighThreshold := flag.Float64("temporal_high_threshold", 0.5, "Mode selector: temporal decay (reciprocal of the inferred decay slope, capped at 1) at or above this enables linear decay")
	temporalLowThreshold := flag.Float64("temporal_low_threshold", 0.3, "Mode selector: temporal decay (reciprocal of the inferred decay slope, capped at 1) at or above this (but below temporal_high_threshold) is 'moderate' temporal locality")

	metricsLogInterval := flag.Duration("metrics_log_interval", 15*time.Second, "How often to append a metrics row to metrics_csv_path. 0 disables periodic logging")
	metricsCSVPath := flag.String("metrics_csv_path", "", "If non-empty, append full-format CSV metrics rows to this file")
	prometheusAddr := flag.String("prometheus_addr", "", "If non-empty, expose Prometheus metrics on this address (e.g. :9090)")

	capsuleStoreKind := flag.String("capsule_store", "memory", "Capsule store backend: 'memory' or 'redis'")
	capsuleRedisAddr := flag.String("capsule_redis_addr", "127.0.0.1:6379", "Redis address, used when capsule_store=redis")
	capsuleID := flag.String("capsule_id", "", "If non-empty, load this capsule at startup and log its payload size; the payload is not applied (decimal content-hash ID)")
	flag.Parse()

	logger := slog.Default()

	modeselect.EntropyHighThreshold = fixedpoint.FromFloat(*entropyHighThreshold)
	modeselect.CVHighThreshold = fixedpoint.FromFloat(*cvHighThreshold)
	modeselect.TemporalDecayHighThreshold = fixedpoint.FromFloat(*temporalHighThreshold)
	modeselect.TemporalDecayLowThreshold = fixedpoint.FromFloat(*temporalLowThreshold)

	cfg := physics.DefaultConfig()
	cfg.HeartbeatInterval = *heartbeatInterval
	cfg.DecaySlope = fixedpoint.FromFloat(*decaySlope)
	cfg.DecayMinInterval = *decayMinInterval

	core := physics.NewCore(logger, cfg)

	store, err := buildCapsuleStore(*capsuleStoreKind, *capsuleRedisAddr)
	if err != nil {
		log.Fatalf("physicsd: %v", err)
	}
	if *capsuleID != "" {
		loadStartupCapsule(store, *capsuleID, logger)
	}

	var exporter *metrics.Exporter
	if *prometheusAddr != "" {
		exporter = metrics.NewExporter()
		exporter.Serve(*prometheusAddr)
		logger.Info("prometheus metrics listening", "addr", *prometheusAddr)
		defer exporter.Shutdown()
	}

	var csvFile *os.File
	if *metricsCSVPath != "" {
		f, err := os.OpenFile(*metricsCSVPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("physicsd: opening metrics CSV: %v", err)
		}
		csvFile = f
		defer csvFile.Close()
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			_ = metrics.WriteCSVHeader(csvFile)
		}
	}

	startedAt := time.Now()
	core.Start()

	stopMetricsLog := make(chan struct{})
	if *metricsLogInterval > 0 {
		go runMetricsLog(core, exporter, csvFile, *metricsLogInterval, startedAt, stopMetricsLog)
	}

	stopStdin := make(chan struct{})
	go runWordStream(core, logger, stopStdin)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nphysicsd: shutting down...")
	close(stopMetricsLog)
	core.Stop()

	if *capsuleID == "" {
		saveShutdownCapsule(store, core, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	<-ctx.Done()
	fmt.Println("physicsd: stopped.")
}

// runWordStream treats each line of stdin as one word execution.
func runWordStream(core *physics.Core, logger *slog.Logger, stop <-chan struct{}) {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-stop:
			return
		case name, ok := <-lines:
			if !ok {
				return
			}
			if name == "" {
				continue
			}
			entry, found := core.OnLookup(name)
			if !found {
				entry = core.Dict.AddWord(name)
			}
			core.PreExecute(entry)
			core.PostExecute(entry)
		}
	}
}

// runMetricsLog periodically snapshots metrics and writes them to the
// configured CSV file and/or Prometheus exporter.
func runMetricsLog(core *physics.Core, exporter *metrics.Exporter, csvFile *os.File, interval time.Duration, startedAt time.Time, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := metrics.Snapshot(metrics.Sources{
				Dict:             core.Dict,
				Window:           core.Window,
				Cache:            core.Cache,
				Heartbeat:        core.Heartbeat,
				Loops:            metrics.LoopFlagsFromMode(modeselect.ApplyMode(core.ModeState)),
				WorkloadDuration: time.Since(startedAt),
			}, metrics.NowTimestamp())

			if csvFile != nil {
				_ = metrics.WriteCSVRow(csvFile, snap)
			}
			if exporter != nil {
				exporter.Observe(snap, 0)
			}
		}
	}
}

func buildCapsuleStore(kind, redisAddr string) (capsule.Store, error) {
	switch kind {
	case "", "memory":
		return capsule.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		return capsule.NewRedisStore(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown capsule store backend: %s", kind)
	}
}

func loadStartupCapsule(store capsule.Store, idStr string, logger *slog.Logger) {
	id, err := parseCapsuleID(idStr)
	if err != nil {
		logger.Warn("ignoring malformed capsule_id flag", "capsule_id", idStr, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := store.Load(ctx, id)
	if err != nil {
		logger.Warn("could not load startup capsule", "capsule_id", idStr, "error", err)
		return
	}
	logger.Info("loaded startup capsule", "capsule_id", idStr, "payload_bytes", len(c.Payload))
}

func saveShutdownCapsule(store capsule.Store, core *physics.Core, logger *slog.Logger) {
	_ = core // the payload format (a serialized tuning-knob/heat snapshot) is an
	// Open Question left to a future CLI subcommand; here we only
	// demonstrate the store round-trip with a fixed marker payload.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c := capsule.New([]byte("physicsd-shutdown-marker"), capsule.FlagProduction|capsule.FlagActive)
	if err := store.Store(ctx, c); err != nil {
		logger.Warn("could not save shutdown capsule", "error", err)
		return
	}
	logger.Info("saved shutdown capsule", "capsule_id", uint64(c.ID))
}

func parseCapsuleID(s string) (capsule.CapsuleID, error) {
	var id uint64
	_, err := fmt.Sscanf(s, "%d", &id)
	return capsule.CapsuleID(id), err
}
