// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// defaultSettings matches the heatpump package defaults
func defaultSettings() heatpump.Settings {
	return heatpump.Settings{
		Power:           "ON",
		Mode:            "DRY",
		Fan:             "2",
		Vane:            "3",
		WideVane:        "<<",
		Temperature:     20,
		RoomTemperature: 18,
	}
}

// fakeEngine is an Engine whose pending flag is cleared by the test
type fakeEngine struct {
	current      heatpump.Settings
	ready        bool
	wanted       heatpump.Settings
	pending      bool
	wants        int
	currentCalls int
}

func (f *fakeEngine) Current() (heatpump.Settings, bool) {
	f.currentCalls++
	return f.current, f.ready
}

func (f *fakeEngine) Want(s heatpump.Settings) {
	f.wanted = s
	f.pending = true
	f.wants++
}

func (f *fakeEngine) Pending() bool { return f.pending }

// apply mimics the engine consuming the wanted settings
func (f *fakeEngine) apply() {
	room := f.current.RoomTemperature
	f.current = f.wanted
	f.current.RoomTemperature = room
	f.pending = false
}

// fakeLink is a non-blocking in-memory remote link
type fakeLink struct {
	rx       bytes.Buffer
	tx       bytes.Buffer
	writeErr error
}

func (l *fakeLink) Read(p []byte) (int, error) {
	if l.rx.Len() == 0 {
		return 0, nil
	}
	return l.rx.Read(p)
}

func (l *fakeLink) Write(p []byte) (int, error) {
	if l.writeErr != nil {
		return 0, l.writeErr
	}
	return l.tx.Write(p)
}

// takeReplies decodes and drains everything written to the link
func (l *fakeLink) takeReplies(t *testing.T) []*cn105.Frame {
	t.Helper()
	var frames []*cn105.Frame
	cn105.NewDecoder().Decode(l.tx.Bytes(), func(f *cn105.Frame, err error) {
		if err != nil {
			t.Fatalf("emulator sent a bad frame: %v", err)
		}
		frames = append(frames, f)
	})
	l.tx.Reset()
	return frames
}

var errLinkDown = errors.New("link down")

// settingsRequest builds a 0x41 frame from flag bytes and offset values
func settingsRequest(flags1, flags2 byte, set map[int]byte) *cn105.Frame {
	payload := make([]byte, cn105.StandardPayloadLen)
	payload[0] = 0x01
	payload[cn105.OffsetSetFlags1-cn105.HeaderSize] = flags1
	payload[cn105.OffsetSetFlags2-cn105.HeaderSize] = flags2
	for off, v := range set {
		payload[off-cn105.HeaderSize] = v
	}
	return cn105.BuildRequest(cn105.CmdSetSettings, payload)
}

// infoRequest builds a 0x42 frame for a selector
func infoRequest(sel byte) *cn105.Frame {
	payload := make([]byte, cn105.StandardPayloadLen)
	payload[0] = sel
	return cn105.BuildRequest(cn105.CmdInfoRequest, payload)
}
