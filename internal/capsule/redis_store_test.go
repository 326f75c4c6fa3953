// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package capsule

import (
	"context"
	"testing"

	redis "github.com/redis/go-redis/v9"
)

// fakeHashClient is an in-process stand-in for a *redis.Client,
// satisfying HashClient without requiring a live Redis server.
type fakeHashClient struct {
	hashes map[string]map[string]string
}

func newFakeHashClient() *fakeHashClient {
	return &fakeHashClient{hashes: make(map[string]map[string]string)}
}

func (f *fakeHashClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	// Mirrors go-redis' own HSet convenience behavior: a single map
	// argument is expanded into field/value pairs, same as passing them
	// flat.
	if len(values) == 1 {
		if m, ok := values[0].(map[string]interface{}); ok {
			for field, v := range m {
				h[field] = toHashString(v)
			}
			cmd := redis.NewIntCmd(ctx)
			cmd.SetVal(int64(len(m)))
			return cmd
		}
	}
	for i := 0; i+1 < len(values); i += 2 {
		field, _ := values[i].(string)
		h[field] = toHashString(values[i+1])
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (f *fakeHashClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	cmd.SetVal(f.hashes[key])
	return cmd
}

func toHashString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := newFakeHashClient()
	store := NewRedisStore(client, "")
	ctx := context.Background()

	c := New([]byte("redis-payload"), FlagProduction|FlagActive)
	if err := store.Store(ctx, c); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	got, err := store.Load(ctx, c.ID)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if string(got.Payload) != "redis-payload" {
		t.Fatalf("unexpected payload round-trip: %q", got.Payload)
	}
	if got.Flags != c.Flags {
		t.Fatalf("unexpected flags round-trip: got %#x want %#x", got.Flags, c.Flags)
	}
}

func TestRedisStoreLoadNotFound(t *testing.T) {
	client := newFakeHashClient()
	store := NewRedisStore(client, "")
	if _, err := store.Load(context.Background(), CapsuleID(999)); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
