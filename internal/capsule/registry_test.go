// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package capsule

import (
	"context"
	"testing"
)

func TestRegistryRejectsMismatchedBackends(t *testing.T) {
	_, err := NewRegistry([]string{"a", "b"}, []Store{NewMemoryStore()})
	if err == nil {
		t.Fatalf("expected error for mismatched names/stores length")
	}
}

func TestRegistryRejectsEmptyBackends(t *testing.T) {
	if _, err := NewRegistry(nil, nil); err == nil {
		t.Fatalf("expected error for zero backends")
	}
}

func TestRegistryStoreAndLoadRoundTrip(t *testing.T) {
	stores := []Store{NewMemoryStore(), NewMemoryStore(), NewMemoryStore()}
	reg, err := NewRegistry([]string{"a", "b", "c"}, stores)
	if err != nil {
		t.Fatalf("unexpected error building registry: %v", err)
	}

	ctx := context.Background()
	c := New([]byte("snapshot-bytes"), FlagProduction|FlagActive)
	if err := reg.Store(ctx, c); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	got, err := reg.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if string(got.Payload) != "snapshot-bytes" {
		t.Fatalf("unexpected payload: %q", got.Payload)
	}
}

func TestRegistryPlacementIsStableAcrossCalls(t *testing.T) {
	stores := []Store{NewMemoryStore(), NewMemoryStore(), NewMemoryStore()}
	reg, err := NewRegistry([]string{"a", "b", "c"}, stores)
	if err != nil {
		t.Fatalf("unexpected error building registry: %v", err)
	}

	id := New([]byte("stable"), FlagProduction|FlagActive).ID
	first := reg.backendFor(id)
	for i := 0; i < 10; i++ {
		if reg.backendFor(id) != first {
			t.Fatalf("expected rendezvous placement to be stable for a fixed ID and backend set")
		}
	}
}

func TestRegistryBackendsReturnsConfiguredNames(t *testing.T) {
	reg, err := NewRegistry([]string{"a", "b"}, []Store{NewMemoryStore(), NewMemoryStore()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := reg.Backends()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("unexpected backend names: %v", names)
	}
}
