// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package heartbeat drives the periodic background passes (rolling-window
// service, dictionary reorganization, inference, mode-selector updates)
// off a single adaptive ticker, with a graceful final pass on shutdown.
package heartbeat

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is invoked once per heartbeat tick, with the running tick count
// (starting at 1).
type TickFunc func(tick uint64)

// Driver runs a TickFunc on a ticker, with an optional final invocation on
// graceful stop and a runtime-adjustable interval.
type Driver struct {
	logger *slog.Logger
	onTick TickFunc
	onStop TickFunc // optional graceful final pass; may be nil

	newTicker func(time.Duration) *time.Ticker // overridable for tests

	mu       sync.Mutex
	interval time.Duration
	ticker   *time.Ticker

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  atomic.Bool
	tickNum  atomic.Uint64
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithOnStop registers a TickFunc to run exactly once, synchronously,
// when Stop is called — the driver's graceful final pass.
func WithOnStop(fn TickFunc) Option {
	return func(d *Driver) { d.onStop = fn }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) { d.logger = logger }
}

// withTickerFactory overrides how tickers are constructed, for tests that
// want a short interval without coupling to wall-clock sleeps elsewhere in
// the suite.
func withTickerFactory(f func(time.Duration) *time.Ticker) Option {
	return func(d *Driver) { d.newTicker = f }
}

// New returns a Driver that calls onTick once per interval until Stop is
// called.
func New(interval time.Duration, onTick TickFunc, opts ...Option) *Driver {
	d := &Driver{
		logger:    slog.Default(),
		onTick:    onTick,
		interval:  interval,
		newTicker: time.NewTicker,
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the background tick loop. Safe to call once per Driver.
func (d *Driver) Start() {
	d.mu.Lock()
	d.ticker = d.newTicker(d.interval)
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop()
}

func (d *Driver) loop() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		c := d.ticker.C
		d.mu.Unlock()

		select {
		case <-c:
			n := d.tickNum.Add(1)
			d.onTick(n)
		case <-d.stopChan:
			if d.onStop != nil {
				d.onStop(d.tickNum.Load())
			}
			return
		}
	}
}

// Stop halts the tick loop and blocks until the graceful final pass (if
// any) has completed. Safe to call more than once.
func (d *Driver) Stop() {
	if !d.stopped.CompareAndSwap(false, true) {
		return
	}
	close(d.stopChan)
	d.wg.Wait()

	d.mu.Lock()
	d.ticker.Stop()
	d.mu.Unlock()
}

// AdjustInterval changes the tick period at runtime without restarting the
// loop, for the heartbeat frequency the adaptive pass chooses.
func (d *Driver) AdjustInterval(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interval = interval
	if d.ticker != nil {
		d.ticker.Reset(interval)
	}
}

// Interval returns the current tick period.
func (d *Driver) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}

// TickCount returns the number of ticks processed so far.
func (d *Driver) TickCount() uint64 {
	return d.tickNum.Load()
}

// RunOnce invokes onTick inline, bypassing the ticker entirely — used by
// callers that want a synchronous pass (e.g. a CLI one-shot mode) without
// standing up a background goroutine.
func (d *Driver) RunOnce() {
	n := d.tickNum.Add(1)
	d.onTick(n)
}
