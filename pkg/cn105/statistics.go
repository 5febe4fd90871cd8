// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	ChecksumErrors  uint64
	OverflowErrors  uint64
	ShortFrames     uint64
	UnknownCommands uint64
	KeepAlives      uint64
	RepliesSent     uint64
	Commands        map[byte]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		Commands:       make(map[byte]uint64),
	}
}

// Update updates statistics based on a decoded frame or decode error
func (s *Statistics) Update(frame *Frame, decodeErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		switch {
		case errors.Is(decodeErr, ErrChecksum):
			s.ChecksumErrors++
		case errors.Is(decodeErr, ErrOverflow):
			s.OverflowErrors++
		}
		return
	}

	s.ValidFrames++
	if frame != nil {
		s.Commands[frame.Command()]++
	}
}

// RecordReply counts a reply written to the remote
func (s *Statistics) RecordReply() { s.RepliesSent++ }

// RecordShort counts a valid frame too short for its command
func (s *Statistics) RecordShort() { s.ShortFrames++ }

// RecordUnknown counts a valid frame with an unrecognised command
func (s *Statistics) RecordUnknown() { s.UnknownCommands++ }

// RecordKeepAlive counts a keep-alive set-settings frame
func (s *Statistics) RecordKeepAlive() { s.KeepAlives++ }

// Errors returns the number of rejected frames
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.OverflowErrors + s.ShortFrames
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// Clone returns a deep copy suitable for handing to another goroutine
func (s *Statistics) Clone() *Statistics {
	c := *s
	c.Commands = make(map[byte]uint64, len(s.Commands))
	for k, v := range s.Commands {
		c.Commands[k] = v
	}
	return &c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, checksumPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.OverflowErrors > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", s.OverflowErrors)
	}
	if s.ShortFrames > 0 {
		result += fmt.Sprintf("Short Frames:    %8d\n", s.ShortFrames)
	}
	if s.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", s.UnknownCommands)
	}
	if s.KeepAlives > 0 {
		result += fmt.Sprintf("Keep-alives:     %8d\n", s.KeepAlives)
	}
	if s.RepliesSent > 0 {
		result += fmt.Sprintf("Replies Sent:    %8d\n", s.RepliesSent)
	}

	cmds := make([]int, 0, len(s.Commands))
	for c := range s.Commands {
		cmds = append(cmds, int(c))
	}
	sort.Ints(cmds)
	for _, c := range cmds {
		result += fmt.Sprintf("  %-16s %5d\n", FormatCommand(byte(c))+":", s.Commands[byte(c)])
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
