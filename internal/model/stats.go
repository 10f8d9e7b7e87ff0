// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"time"
)

// =============================================================================
// STATISTICS TYPE
// =============================================================================

// Statistics holds timing and delta counts for one streamed response.
type Statistics struct {
	StartTime      time.Time
	FirstDeltaTime time.Time
	EndTime        time.Time

	DeltaCount int

	// Derived on Finalize
	TTFD          time.Duration
	TotalDuration time.Duration
}

// NewStatistics creates a new Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
	}
}

// RecordDelta counts a content delta and records the first one's arrival.
func (s *Statistics) RecordDelta() {
	s.DeltaCount++
	if s.FirstDeltaTime.IsZero() {
		s.FirstDeltaTime = time.Now()
		s.TTFD = s.FirstDeltaTime.Sub(s.StartTime)
	}
}

// Finalize computes the final statistics.
func (s *Statistics) Finalize() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// Format returns a one-line summary, e.g. "2.5s | 42 deltas | first 234ms".
func (s Statistics) Format() string {
	out := fmt.Sprintf("%s | %d deltas", formatDuration(s.TotalDuration), s.DeltaCount)
	if !s.FirstDeltaTime.IsZero() {
		out += " | first " + formatDuration(s.TTFD)
	}
	return out
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
