// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, records ...func(*cn105.CaptureWriter) error) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := cn105.NewCaptureWriter(&buf)
	for _, rec := range records {
		require.NoError(t, rec(w))
	}
	return &buf
}

func remoteSent(f *cn105.Frame) func(*cn105.CaptureWriter) error {
	return func(w *cn105.CaptureWriter) error { return w.WriteFrame(cn105.DirRemoteToHeatPump, f, true) }
}

func unitSent(data []byte) func(*cn105.CaptureWriter) error {
	return func(w *cn105.CaptureWriter) error {
		return w.WriteFrame(cn105.DirHeatPumpToRemote, cn105.NewFrame(data), true)
	}
}

func replayOpts() replayOptions {
	return replayOptions{
		Initial:   testSettings(),
		Reconcile: emulator.DefaultReconcileConfig(),
		Logger:    quietLogger(),
		Verbose:   true,
	}
}

func TestReplay_ComparesRecordedReplies(t *testing.T) {
	pingAck := []byte{0xFC, 0x7A, 0x01, 0x30, 0x01, 0x00, 0x54}
	capture := writeCapture(t,
		remoteSent(connectRequest()),
		unitSent(pingAck),
		remoteSent(connectRequest()),
		unitSent([]byte{0xFC, 0x7A, 0x01, 0x30, 0x01, 0x01, 0x53}),
		remoteSent(infoRequest(cn105.InfoSettings)),
	)

	var out bytes.Buffer
	res, err := replayCapture(capture, &out, replayOpts())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Requests)
	assert.Equal(t, 3, res.Replies)
	assert.Equal(t, 2, res.Compared)
	assert.Equal(t, 1, res.Mismatches)
	assert.Contains(t, out.String(), "HP->RE fc7a0130 010054")
	assert.Contains(t, out.String(), "differs from recorded fc7a0130 010153")

	require.Len(t, res.Final, 3)
	assert.Equal(t, heatpump.NameEmulator, res.Final[1].Name)
	assert.Equal(t, 22, res.Final[1].SetTemp)
}

func TestReplay_InvalidFrameGetsNoReply(t *testing.T) {
	bad := cn105.NewFrame([]byte{0xFC, 0x5A, 0x01, 0x30, 0x01, 0x00, 0x00})
	capture := writeCapture(t,
		func(w *cn105.CaptureWriter) error { return w.WriteFrame(cn105.DirRemoteToHeatPump, bad, false) },
	)

	res, err := replayCapture(capture, &bytes.Buffer{}, replayOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, 0, res.Replies)
}

func TestReplay_Empty(t *testing.T) {
	res, err := replayCapture(&bytes.Buffer{}, &bytes.Buffer{}, replayOpts())
	require.NoError(t, err)
	assert.Zero(t, res.Requests)
	assert.Nil(t, res.Final)
}

func TestReplay_CorruptCapture(t *testing.T) {
	_, err := replayCapture(bytes.NewReader([]byte{0xFF, 0x00, 0x13}), &bytes.Buffer{}, replayOpts())
	assert.Error(t, err)
}
