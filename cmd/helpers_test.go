// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"io"
	"time"

	"github.com/Thermoquad/cn105emu/internal/engine"
	"github.com/Thermoquad/cn105emu/pkg/emulator"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSettings() heatpump.Settings {
	return heatpump.Settings{
		Power: "ON", Mode: "HEAT", Fan: "AUTO", Vane: "AUTO", WideVane: "|",
		Temperature: 22, RoomTemperature: 19,
	}
}

// loopbackEmulator answers writes synchronously through an emulator
type loopbackEmulator struct {
	link *replayLink
	emu  *emulator.Emulator
}

func newLoopbackEmulator() *loopbackEmulator {
	clock := emulator.NewManualClock(epoch)
	link := &replayLink{}
	sim := engine.NewSim(testSettings(), engine.SimOptions{Clock: clock, Logger: quietLogger()})
	emu := emulator.New(link, sim, emulator.Options{
		Clock:   clock,
		Logger:  quietLogger(),
		Initial: testSettings(),
	})
	return &loopbackEmulator{link: link, emu: emu}
}

func (l *loopbackEmulator) Write(p []byte) (int, error) {
	l.link.in.Write(p)
	for l.link.in.Len() > 0 {
		if _, err := l.emu.Step(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (l *loopbackEmulator) Read(p []byte) (int, error) {
	if l.link.out.Len() == 0 {
		return 0, nil
	}
	return l.link.out.Read(p)
}

// chunkReader returns one chunk per Read, then err
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, r.err
	}
	n := copy(p, r.chunks[0])
	r.chunks = r.chunks[1:]
	return n, nil
}
