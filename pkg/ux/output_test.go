// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
	"testing"
)

func TestSetPlain(t *testing.T) {
	t.Cleanup(func() { plainMode.Store(0) })

	SetPlain(true)
	if !IsPlain() {
		t.Error("SetPlain(true) not reflected by IsPlain")
	}
	SetPlain(false)
	if IsPlain() {
		t.Error("SetPlain(false) not reflected by IsPlain")
	}
}

func TestIsPlain_AutoDetectCaches(t *testing.T) {
	t.Cleanup(func() { plainMode.Store(0) })

	plainMode.Store(0)
	first := IsPlain()
	if plainMode.Load() == 0 {
		t.Error("IsPlain did not cache the detection result")
	}
	if IsPlain() != first {
		t.Error("cached IsPlain disagrees with first detection")
	}
}

func TestIcon_RenderPlain(t *testing.T) {
	t.Cleanup(func() { plainMode.Store(0) })

	SetPlain(true)
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconArrow, IconBullet} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("plain Render(%q) = %q, want bare glyph", icon, got)
		}
	}
}

func TestKeyValue_PlainAlignment(t *testing.T) {
	t.Cleanup(func() { plainMode.Store(0) })

	SetPlain(true)
	row := KeyValue("tokens/sec", "1200000")
	if !strings.HasPrefix(row, "tokens/sec") {
		t.Errorf("row does not start with the key: %q", row)
	}
	if !strings.HasSuffix(row, "1200000") {
		t.Errorf("row does not end with the value: %q", row)
	}
	if len(row) < 25 {
		t.Errorf("key column not padded: %q", row)
	}
}

func TestKeyValue_StyledKeepsValue(t *testing.T) {
	t.Cleanup(func() { plainMode.Store(0) })

	SetPlain(false)
	row := KeyValue("nodes", "42")
	if !strings.Contains(row, "42") {
		t.Errorf("styled row lost the value: %q", row)
	}
}
