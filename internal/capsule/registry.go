// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package capsule

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Registry selects among multiple configured Store backends via
// rendezvous (highest random weight) hashing keyed on capsule ID, so
// adding or removing a backend only reshuffles the minimum necessary set
// of capsule placements rather than the whole keyspace (as naive modulo
// sharding would).
type Registry struct {
	names   []string
	stores  map[string]Store
	hashRing *rendezvous.Rendezvous
}

// NewRegistry builds a Registry over the given named backends. names and
// stores must correspond 1:1 by index.
func NewRegistry(names []string, stores []Store) (*Registry, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("capsule: registry requires at least one backend")
	}
	if len(names) != len(stores) {
		return nil, fmt.Errorf("capsule: %d backend names but %d stores", len(names), len(stores))
	}
	byName := make(map[string]Store, len(names))
	for i, n := range names {
		byName[n] = stores[i]
	}
	return &Registry{
		names:    append([]string{}, names...),
		stores:   byName,
		hashRing: rendezvous.New(names, seededHash),
	}, nil
}

// seededHash combines a candidate node name with rendezvous's seed using
// xxhash, the same content-hash function the capsule ID itself uses.
func seededHash(s string, seed uint64) uint64 {
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], seed)
	h := xxhash.New()
	_, _ = h.WriteString(s)
	_, _ = h.Write(seedBuf[:])
	return h.Sum64()
}

// backendFor returns the store rendezvous-hashing selects for id.
func (r *Registry) backendFor(id CapsuleID) Store {
	name := r.hashRing.Lookup(strconv.FormatUint(uint64(id), 10))
	return r.stores[name]
}

// Store places c on its rendezvous-selected backend.
func (r *Registry) Store(ctx context.Context, c Capsule) error {
	return r.backendFor(c.ID).Store(ctx, c)
}

// Load retrieves the capsule with the given ID from its rendezvous-
// selected backend.
func (r *Registry) Load(ctx context.Context, id CapsuleID) (Capsule, error) {
	return r.backendFor(id).Load(ctx, id)
}

// Backends returns the configured backend names, in registration order.
func (r *Registry) Backends() []string {
	return append([]string{}, r.names...)
}
