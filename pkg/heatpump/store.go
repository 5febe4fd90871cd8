// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import "github.com/sirupsen/logrus"

// Instance names
const (
	NameRemote   = "remote"
	NameEmulator = "emulator"
	NameEngine   = "engine"
)

// Store holds the three state instances
type Store struct {
	Remote   *State // last settings commanded by the wired remote
	Emulator *State // settings served to the remote
	Engine   *State // settings reported by the external engine
}

// NewStore creates the three instances with default settings
func NewStore(log logrus.FieldLogger) *Store {
	return &Store{
		Remote:   New(NameRemote, log),
		Emulator: New(NameEmulator, log),
		Engine:   New(NameEngine, log),
	}
}

// Seed applies the same settings to every instance
func (s *Store) Seed(in Settings) {
	s.Emulator.ApplySettings(in)
	s.Remote.CopyFrom(s.Emulator)
	s.Engine.CopyFrom(s.Emulator)
}

// Snapshots returns display views in remote, emulator, engine order
func (s *Store) Snapshots() []Snapshot {
	return []Snapshot{s.Remote.Snapshot(), s.Emulator.Snapshot(), s.Engine.Snapshot()}
}
