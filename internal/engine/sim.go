// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package engine provides external control engine adapters for the emulator.
package engine

import (
	"context"
	"time"

	"github.com/Thermoquad/cn105emu/internal/syncutil"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

const defaultPollInterval = 100 * time.Millisecond

// SimOptions configure a Sim engine
type SimOptions struct {
	Warmup       time.Duration // no report before this has elapsed
	ApplyDelay   time.Duration // wanted settings apply after this
	PollInterval time.Duration
	Clock        emulator.Clock
	Logger       logrus.FieldLogger
}

// Sim is an in-memory engine standing in for a real controller
type Sim struct {
	opts SimOptions
	log  logrus.FieldLogger

	mu       syncutil.Mutex
	started  time.Time
	current  heatpump.Settings
	wanted   heatpump.Settings
	wantedAt time.Time
	pending  bool
	applied  uint64
}

// NewSim creates a sim engine reporting initial once warmed up
func NewSim(initial heatpump.Settings, opts SimOptions) *Sim {
	if opts.Clock == nil {
		opts.Clock = emulator.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Sim{
		opts:    opts,
		log:     opts.Logger.WithField("engine", "sim"),
		started: opts.Clock.Now(),
		current: initial,
	}
}

// Current implements emulator.Engine
func (s *Sim) Current() (heatpump.Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.Clock.Now()
	s.poll(now)
	if now.Sub(s.started) < s.opts.Warmup {
		return heatpump.Settings{}, false
	}
	return s.current, true
}

// Want implements emulator.Engine
func (s *Sim) Want(in heatpump.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wanted = in
	s.wantedAt = s.opts.Clock.Now()
	s.pending = true
	s.log.WithField("settings", in.String()).Debug("wanted")
}

// Pending implements emulator.Engine
func (s *Sim) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poll(s.opts.Clock.Now())
	return s.pending
}

// Set replaces the reported settings as if changed at the controller
func (s *Sim) Set(in heatpump.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.RoomTemperature == 0 {
		in.RoomTemperature = s.current.RoomTemperature
	}
	s.current = in
	s.log.WithField("settings", in.String()).Info("changed at controller")
}

// SetRoomTemperature updates the simulated room sensor
func (s *Sim) SetRoomTemperature(t float64) {
	s.mu.Lock()
	s.current.RoomTemperature = t
	s.mu.Unlock()
}

// Applied returns how many wanted settings have been applied
func (s *Sim) Applied() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Run polls until ctx is done
func (s *Sim) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			s.poll(s.opts.Clock.Now())
			s.mu.Unlock()
		}
	}
}

// poll applies wanted settings once the delay has passed. Caller holds mu.
func (s *Sim) poll(now time.Time) {
	if !s.pending || now.Sub(s.wantedAt) < s.opts.ApplyDelay {
		return
	}
	room := s.current.RoomTemperature
	s.current = s.wanted
	if s.current.RoomTemperature == 0 {
		s.current.RoomTemperature = room
	}
	s.pending = false
	s.applied++
	s.log.WithField("settings", s.current.String()).Info("applied")
}
