// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/AleutianAI/axon/connection"
)

// EdgeID is the deterministic identity of a connection: a 64-bit hash of
// its (from, to, type) triple. Two graphs inserting the same triple
// always derive the same id, which is what makes replay and seeding
// idempotent.
type EdgeID uint64

// String renders the id as fixed-width hex.
func (id EdgeID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// ComputeEdgeID hashes the 9-byte little-endian (from, to, type) tuple.
//
// The hash is direction-sensitive: (a, b, t) and (b, a, t) produce
// different ids unless a == b. Pure function, safe without any lock.
func ComputeEdgeID(from, to uint32, t connection.ConnectionType) EdgeID {
	var buf [9]byte
	binary.LittleEndian.PutUint32(buf[0:4], from)
	binary.LittleEndian.PutUint32(buf[4:8], to)
	buf[8] = byte(t)
	return EdgeID(xxhash.Sum64(buf[:]))
}
