// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package capsule implements content-addressed, immutable configuration
// capsules: small, versioned payloads (tuning-knob bundles, pre-warmed
// dictionary heat snapshots) that a physics-core instance can load at
// startup or exchange with sibling instances. A capsule's identity is
// the content hash of its payload, never an externally assigned name, so
// two capsules with identical bytes are always the same capsule.
package capsule

import (
	"time"

	"github.com/cespare/xxhash/v2"
)

// State and mode flags, ported from starkernel/capsule.h's bit-flag
// layout. The original packs these into a uint32 alongside owner/birth
// bookkeeping meant for a VM-birth process this module has no use for;
// only the flag semantics (state + mode mutual exclusion) are carried
// over.
const (
	FlagActive     uint32 = 0x00000001 // eligible for use
	FlagRevoked    uint32 = 0x00000002 // birth-blocked forever
	FlagDeprecated uint32 = 0x00000004 // eligible but discouraged
	FlagPinned     uint32 = 0x00000008 // immune to eviction

	FlagProduction uint32 = 0x00000010 // (p) truth-bearing
	FlagExperiment uint32 = 0x00000020 // (e) workload/exploratory only
)

// CapsuleID is a capsule's content-addressed identity: the xxhash64 of
// its payload bytes.
type CapsuleID uint64

// IDFromPayload computes a capsule's content-addressed ID.
func IDFromPayload(payload []byte) CapsuleID {
	return CapsuleID(xxhash.Sum64(payload))
}

// Capsule is an immutable, content-addressed configuration record.
type Capsule struct {
	ID        CapsuleID
	Payload   []byte
	Flags     uint32
	CreatedAt time.Time
}

// New builds a Capsule whose ID is derived from payload, matching the
// original's capsule_id == content_hash invariant. Payload is copied so
// the caller's slice can be reused or mutated afterward.
func New(payload []byte, flags uint32) Capsule {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return Capsule{
		ID:        IDFromPayload(cp),
		Payload:   cp,
		Flags:     flags,
		CreatedAt: time.Now(),
	}
}

// ModeValid mirrors CAPSULE_MODE_VALID: exactly one of (p)roduction or
// (e)xperiment must be set.
func ModeValid(flags uint32) bool {
	production := flags&FlagProduction != 0
	experiment := flags&FlagExperiment != 0
	return production != experiment // exclusive or
}

// BirthEligible mirrors CAPSULE_BIRTH_ELIGIBLE: production, active, and
// not revoked.
func BirthEligible(flags uint32) bool {
	return flags&FlagProduction != 0 &&
		flags&FlagActive != 0 &&
		flags&FlagRevoked == 0
}

// DoEEligible mirrors CAPSULE_DOE_ELIGIBLE: experiment, active, and not
// revoked.
func DoEEligible(flags uint32) bool {
	return flags&FlagExperiment != 0 &&
		flags&FlagActive != 0 &&
		flags&FlagRevoked == 0
}
