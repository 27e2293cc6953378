// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive stores experience batches as compressed segment
// files for long-term retention. A segment holds one batch of
// fixed-size event images behind a small fixed header; segments are
// immutable once written and carry a UUID name, so writers never
// contend and readers never see partial files.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/AleutianAI/axon/stream"
)

// Segment format constants. These values are on-disk protocol;
// changing them breaks existing segments.
const (
	// SegmentMagic is the four-byte file signature, "AXAT" as a
	// big-endian uint32.
	SegmentMagic uint32 = 0x41584154

	// SegmentVersion is the current format version.
	SegmentVersion uint8 = 1

	// SegmentExt is the file extension segments are written with.
	SegmentExt = ".axat"

	// headerSize is the fixed header: 4-byte magic + 1-byte version
	// + 1-byte flags + 2 reserved bytes + 4-byte event count
	// + 4 reserved bytes.
	headerSize = 16
)

// InfoFlags carries per-segment facts a reader needs before touching
// the payload.
type InfoFlags uint8

const (
	// InfoCompressed marks a zstd-compressed payload. Absent, the
	// payload is raw event images; writers fall back to raw when
	// compression does not shrink the batch.
	InfoCompressed InfoFlags = 1 << 0
)

var (
	// ErrEmptyBatch rejects archiving zero events.
	ErrEmptyBatch = errors.New("archive: empty batch")

	// ErrNotSegment reports a file that does not carry the magic.
	ErrNotSegment = errors.New("archive: not a segment file")

	// ErrUnsupportedVersion reports a segment from a newer format.
	ErrUnsupportedVersion = errors.New("archive: unsupported segment version")

	// ErrCorruptSegment reports a header that contradicts the payload.
	ErrCorruptSegment = errors.New("archive: corrupt segment")
)

// SegmentInfo is the decoded header of one segment.
type SegmentInfo struct {
	// Version is the format version the segment was written with.
	Version uint8

	// Flags are the segment's InfoFlags.
	Flags InfoFlags

	// Events is the number of event images in the payload.
	Events int
}

// The codec is shared package-wide. Both halves are safe for
// concurrent use, so one of each serves every writer and reader.
var (
	segmentEncoder *zstd.Encoder
	segmentDecoder *zstd.Decoder
)

func init() {
	var err error
	segmentEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	segmentDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// encodeHeader writes the segment header for count events.
func encodeHeader(buf []byte, flags InfoFlags, count uint32) {
	binary.BigEndian.PutUint32(buf[0:4], SegmentMagic)
	buf[4] = SegmentVersion
	buf[5] = uint8(flags)
	buf[6], buf[7] = 0, 0
	binary.LittleEndian.PutUint32(buf[8:12], count)
	for i := 12; i < headerSize; i++ {
		buf[i] = 0
	}
}

// decodeHeader validates the magic and version and returns the info.
// Unknown flag bits pass through untouched so older readers keep
// working on segments that only add flags.
func decodeHeader(data []byte) (SegmentInfo, error) {
	if len(data) < headerSize {
		return SegmentInfo{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrNotSegment, len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != SegmentMagic {
		return SegmentInfo{}, ErrNotSegment
	}
	if data[4] != SegmentVersion {
		return SegmentInfo{}, fmt.Errorf("%w: %d (this code reads version %d)",
			ErrUnsupportedVersion, data[4], SegmentVersion)
	}
	return SegmentInfo{
		Version: data[4],
		Flags:   InfoFlags(data[5]),
		Events:  int(binary.LittleEndian.Uint32(data[8:12])),
	}, nil
}

// DecodeSegment parses a complete segment image back into events.
func DecodeSegment(data []byte) ([]stream.Event, SegmentInfo, error) {
	info, err := decodeHeader(data)
	if err != nil {
		return nil, SegmentInfo{}, err
	}
	if info.Events == 0 {
		return nil, SegmentInfo{}, fmt.Errorf("%w: zero events", ErrCorruptSegment)
	}

	payload := data[headerSize:]
	want := info.Events * stream.EventSize

	if info.Flags&InfoCompressed != 0 {
		payload, err = segmentDecoder.DecodeAll(payload, make([]byte, 0, want))
		if err != nil {
			return nil, SegmentInfo{}, fmt.Errorf("%w: %v", ErrCorruptSegment, err)
		}
	}
	if len(payload) != want {
		return nil, SegmentInfo{}, fmt.Errorf("%w: payload is %d bytes, header promises %d",
			ErrCorruptSegment, len(payload), want)
	}

	events := make([]stream.Event, info.Events)
	for i := range events {
		if err := events[i].UnmarshalBinary(payload[i*stream.EventSize : (i+1)*stream.EventSize]); err != nil {
			return nil, SegmentInfo{}, fmt.Errorf("%w: event %d: %v", ErrCorruptSegment, i, err)
		}
	}
	return events, info, nil
}
