// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bench

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/axon/pkg/ux"
)

// Render formats the report for the terminal. Styled output gets a
// boxed summary; plain mode prints aligned rows.
func (r *Report) Render() string {
	var b strings.Builder

	for _, p := range r.Phases {
		value := fmt.Sprintf("%12s  %9.0f ops/s  %8s/op",
			p.Duration.Round(10*time.Microsecond), p.OpsPerSecond(), p.PerOp())
		b.WriteString(ux.KeyValue(p.Name, value))
		b.WriteString("\n")
		if p.Note != "" {
			b.WriteString(ux.KeyValue("", p.Note))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(ux.KeyValue("graph", fmt.Sprintf("nodes=%d edges=%d dangling=%d avg_conf=%.3f",
		r.GraphStats.Nodes, r.GraphStats.Edges, r.GraphStats.Dangling, r.GraphStats.AvgConfidence)))
	b.WriteString("\n")
	b.WriteString(ux.KeyValue("stream", fmt.Sprintf("written=%d overwritten=%d sampled=%d torn=%d",
		r.StreamStats.Written, r.StreamStats.Overwritten, r.StreamStats.Sampled, r.StreamStats.TornReads)))
	b.WriteString("\n")
	if r.WALStats.Flushed > 0 || r.WALStats.Dropped > 0 {
		b.WriteString(ux.KeyValue("wal", fmt.Sprintf("flushed=%d dropped=%d errors=%d",
			r.WALStats.Flushed, r.WALStats.Dropped, r.WALStats.WriteErrors)))
		b.WriteString("\n")
	}
	if r.PeakRSSBytes > 0 {
		b.WriteString(ux.KeyValue("peak rss", formatBytes(r.PeakRSSBytes)))
		b.WriteString("\n")
	}
	b.WriteString(ux.KeyValue("total", r.Total.Round(time.Millisecond).String()))

	return b.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
