// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequest(t *testing.T) {
	assert.Equal(t, []byte{0xFC, 0x5A, 0x01, 0x30, 0x01, 0x00, 0x74}, connectRequest().Bytes())
}

func TestInfoRequest(t *testing.T) {
	f := infoRequest(cn105.InfoRoomTemp)
	assert.Equal(t, 22, f.Len())
	assert.Equal(t, byte(cn105.CmdInfoRequest), f.Command())
	assert.Equal(t, byte(cn105.InfoRoomTemp), f.At(cn105.OffsetInfoSelector))
	assert.True(t, f.VerifyChecksum())
}

func TestParseSelectors(t *testing.T) {
	got, err := parseSelectors("02, 0x03,09,")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x03, 0x09}, got)

	_, err = parseSelectors("zz")
	assert.Error(t, err)
	_, err = parseSelectors("100")
	assert.Error(t, err)
}

func TestProbeRound_AgainstEmulator(t *testing.T) {
	conn := newLoopbackEmulator()
	reqs := probeRequests([]byte{cn105.InfoSettings, cn105.InfoRoomTemp})
	require.Len(t, reqs, 3)

	var out bytes.Buffer
	ok := runProbeRound(conn, reqs, time.Second, &out)
	assert.Equal(t, 3, ok, out.String())

	text := out.String()
	assert.Contains(t, text, "fc7a0130 010054")
	assert.Contains(t, text, "INFO SETTINGS:")
	assert.Contains(t, text, "INFO ROOM_TEMP:")
	assert.NotContains(t, text, "FAILED")
}

func TestProbeRound_NoReply(t *testing.T) {
	conn := &silentLink{}
	var out bytes.Buffer
	ok := runProbeRound(conn, probeRequests(nil), 20*time.Millisecond, &out)
	assert.Equal(t, 0, ok)
	assert.Contains(t, out.String(), "FAILED")
	assert.Equal(t, connectRequest().Bytes(), conn.written.Bytes())
}

type silentLink struct {
	written bytes.Buffer
}

func (s *silentLink) Read(p []byte) (int, error)  { return 0, nil }
func (s *silentLink) Write(p []byte) (int, error) { return s.written.Write(p) }
