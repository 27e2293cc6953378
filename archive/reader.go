// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/axon/stream"
)

// ReadSegment loads one segment file back into events.
func ReadSegment(path string) ([]stream.Event, SegmentInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, SegmentInfo{}, fmt.Errorf("read segment: %w", err)
	}
	return DecodeSegment(data)
}

// Reader lists and loads the segments under one directory.
type Reader struct {
	dir string
}

// NewReader opens a segment directory.
func NewReader(dir string) (*Reader, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open archive dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open archive dir: %s is not a directory", dir)
	}
	return &Reader{dir: dir}, nil
}

// Segments returns the segment file names in the directory, sorted.
// Temp files and foreign files are skipped.
func (r *Reader) Segments() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SegmentExt) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read loads the named segment.
func (r *Reader) Read(name string) ([]stream.Event, SegmentInfo, error) {
	return ReadSegment(filepath.Join(r.dir, name))
}

// Info decodes only the named segment's header.
func (r *Reader) Info(name string) (SegmentInfo, error) {
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("read segment: %w", err)
	}
	defer f.Close()

	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return SegmentInfo{}, fmt.Errorf("%w: %v", ErrNotSegment, err)
	}
	return decodeHeader(header[:])
}
