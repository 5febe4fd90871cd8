// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Seed(t *testing.T) {
	s := NewStore(quietLogger())
	s.Seed(Settings{Power: "ON", Mode: "COOL", Fan: "QUIET", Vane: "SWING", WideVane: "<>", Temperature: 24, RoomTemperature: 26})

	assert.True(t, s.Remote.Equal(s.Emulator))
	assert.True(t, s.Engine.Equal(s.Emulator))
	assert.Equal(t, s.Emulator.ActualTemp(), s.Remote.ActualTemp())
	assert.Equal(t, s.Emulator.WideVane(), s.Engine.WideVane())
}

func TestStore_SnapshotsOrder(t *testing.T) {
	snaps := NewStore(quietLogger()).Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, NameRemote, snaps[0].Name)
	assert.Equal(t, NameEmulator, snaps[1].Name)
	assert.Equal(t, NameEngine, snaps[2].Name)
}
