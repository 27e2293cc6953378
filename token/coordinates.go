// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package token

import "fmt"

// CoordinateSpace selects one of the eight 3D positional systems a token
// occupies simultaneously. The numeric values are part of the binary
// layout (they index Token.Coords) and must not be reordered.
type CoordinateSpace uint8

const (
	// L1Physical is spatial position in the environment (0.01-unit grid).
	L1Physical CoordinateSpace = iota

	// L2Sensory is position in perceptual feature space.
	L2Sensory

	// L3Motor is position in actuation/affordance space.
	L3Motor

	// L4Emotional is position in affect space (fine 0.0001-unit grid).
	L4Emotional

	// L5Cognitive is position in reasoning/attention space.
	L5Cognitive

	// L6Social is position in relational space.
	L6Social

	// L7Temporal is position on coarse time axes.
	L7Temporal

	// L8Abstract is position in concept space.
	L8Abstract
)

// NumSpaces is the number of defined coordinate spaces.
const NumSpaces = 8

// ScaleFactors maps each space to its fixed-point scale (steps per unit).
// A coordinate v is stored as round(v * scale) in an int16, so the
// representable range per axis is ±32767/scale and the grid step is
// 1/scale. The factors are part of the wire contract.
var ScaleFactors = [NumSpaces]float32{
	L1Physical:  100,
	L2Sensory:   1000,
	L3Motor:     1000,
	L4Emotional: 10000,
	L5Cognitive: 1000,
	L6Social:    10000,
	L7Temporal:  100,
	L8Abstract:  1000,
}

var spaceNames = [NumSpaces]string{
	L1Physical:  "l1_physical",
	L2Sensory:   "l2_sensory",
	L3Motor:     "l3_motor",
	L4Emotional: "l4_emotional",
	L5Cognitive: "l5_cognitive",
	L6Social:    "l6_social",
	L7Temporal:  "l7_temporal",
	L8Abstract:  "l8_abstract",
}

// Valid reports whether s is one of the eight defined spaces.
func (s CoordinateSpace) Valid() bool {
	return s < NumSpaces
}

// String returns the canonical snake_case name of the space.
func (s CoordinateSpace) String() string {
	if !s.Valid() {
		return fmt.Sprintf("coordinate_space(%d)", uint8(s))
	}
	return spaceNames[s]
}

// Step returns the quantization grid step of the space in space units.
func (s CoordinateSpace) Step() float32 {
	s.mustValid()
	return 1 / ScaleFactors[s]
}

// MaxAbs returns the largest representable coordinate magnitude per axis.
func (s CoordinateSpace) MaxAbs() float32 {
	s.mustValid()
	return 32767 / ScaleFactors[s]
}

// mustValid panics on an undefined space. Accessing a space outside the
// fixed set is a contract violation, never silently ignored.
func (s CoordinateSpace) mustValid() {
	if !s.Valid() {
		panic(fmt.Sprintf("token: undefined coordinate space %d", uint8(s)))
	}
}

// ParseCoordinateSpace resolves a canonical space name (as returned by
// String) to its CoordinateSpace value.
func ParseCoordinateSpace(name string) (CoordinateSpace, error) {
	for i, n := range spaceNames {
		if n == name {
			return CoordinateSpace(i), nil
		}
	}
	return 0, fmt.Errorf("token: unknown coordinate space %q", name)
}

// quantize converts a float coordinate to its fixed-point representation,
// saturating at the int16 range instead of wrapping.
func quantize(v, scale float32) int16 {
	scaled := float64(v) * float64(scale)
	if scaled >= 32767 {
		return 32767
	}
	if scaled <= -32768 {
		return -32768
	}
	if scaled >= 0 {
		return int16(scaled + 0.5)
	}
	return int16(scaled - 0.5)
}

// dequantize converts a fixed-point coordinate back to float units.
func dequantize(raw int16, scale float32) float32 {
	return float32(raw) / scale
}
