// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package capsule

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Store.Load when no capsule with the given
// ID has been stored.
var ErrNotFound = errors.New("capsule: not found")

// Store abstracts where capsules physically live, so the same loader
// logic works against an in-process cache or a shared Redis instance.
type Store interface {
	Store(ctx context.Context, c Capsule) error
	Load(ctx context.Context, id CapsuleID) (Capsule, error)
}

// MemoryStore is an in-process, map-backed Store. It is the default for
// tests and single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[CapsuleID]Capsule
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[CapsuleID]Capsule)}
}

// Store records c, keyed by its content-addressed ID. Storing the same
// ID twice is a no-op overwrite, consistent with immutability: the
// payload bytes backing a given ID never change.
func (s *MemoryStore) Store(_ context.Context, c Capsule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[c.ID] = c
	return nil
}

// Load returns the capsule with the given ID, or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, id CapsuleID) (Capsule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[id]
	if !ok {
		return Capsule{}, ErrNotFound
	}
	return c, nil
}

// HashClient abstracts the minimal Redis surface a RedisStore needs:
// per-key hash writes and reads. A *redis.Client satisfies this
// directly; tests can supply a fake.
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisStore persists capsules in Redis, one hash key per capsule ID, so
// sibling physics-core processes on the same host (or behind the same
// Redis) can share capsules without a filesystem.
type RedisStore struct {
	client HashClient
	prefix string
}

// NewRedisStore returns a RedisStore using client, with keys namespaced
// under "capsule:" (or keyPrefix if non-empty).
func NewRedisStore(client HashClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "capsule:"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (s *RedisStore) key(id CapsuleID) string {
	return fmt.Sprintf("%s%d", s.prefix, uint64(id))
}

// Store writes c's fields as a Redis hash, idempotently: writing the
// same content-addressed ID twice overwrites with identical payload
// bytes, so it is safe under retries.
func (s *RedisStore) Store(ctx context.Context, c Capsule) error {
	return s.client.HSet(ctx, s.key(c.ID), map[string]interface{}{
		"payload":    base64.StdEncoding.EncodeToString(c.Payload),
		"flags":      strconv.FormatUint(uint64(c.Flags), 10),
		"created_ns": strconv.FormatInt(c.CreatedAt.UnixNano(), 10),
	}).Err()
}

// Load fetches and decodes the capsule hash for id.
func (s *RedisStore) Load(ctx context.Context, id CapsuleID) (Capsule, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Capsule{}, err
	}
	if len(res) == 0 {
		return Capsule{}, ErrNotFound
	}
	payload, err := base64.StdEncoding.DecodeString(res["payload"])
	if err != nil {
		return Capsule{}, fmt.Errorf("capsule: decoding payload for %d: %w", uint64(id), err)
	}
	flags, err := strconv.ParseUint(res["flags"], 10, 32)
	if err != nil {
		return Capsule{}, fmt.Errorf("capsule: decoding flags for %d: %w", uint64(id), err)
	}
	createdNs, err := strconv.ParseInt(res["created_ns"], 10, 64)
	if err != nil {
		return Capsule{}, fmt.Errorf("capsule: decoding created_ns for %d: %w", uint64(id), err)
	}
	return Capsule{
		ID:        id,
		Payload:   payload,
		Flags:     uint32(flags),
		CreatedAt: time.Unix(0, createdNs),
	}, nil
}
