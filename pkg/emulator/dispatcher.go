// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import (
	"fmt"
	"io"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/Thermoquad/cn105emu/pkg/heatpump"
	"github.com/sirupsen/logrus"
)

// Dispatcher answers validated frames from the remote.
//
// Replies are built in a single scratch frame, so only one reply is in
// flight at a time.
type Dispatcher struct {
	states *heatpump.Store
	w      io.Writer
	stats  *cn105.Statistics
	log    logrus.FieldLogger

	// remoteChanged runs after remote settings were applied, before the
	// control ack is sent
	remoteChanged func()

	out cn105.Frame
}

// NewDispatcher creates a dispatcher writing replies to w
func NewDispatcher(states *heatpump.Store, w io.Writer, stats *cn105.Statistics, log logrus.FieldLogger) *Dispatcher {
	if stats == nil {
		stats = cn105.NewStatistics()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{states: states, w: w, stats: stats, log: log}
}

// OnRemoteChange registers the hook run after a settings frame is applied
func (d *Dispatcher) OnRemoteChange(fn func()) {
	d.remoteChanged = fn
}

// Dispatch handles one validated frame. It returns a copy of the reply that
// was written, or nil when the frame needs no reply.
func (d *Dispatcher) Dispatch(f *cn105.Frame) (*cn105.Frame, error) {
	switch f.Command() {
	case cn105.CmdConnect:
		d.out.Load(cn105.Template(cn105.CmdConnectAck))

	case cn105.CmdConfigRequest:
		d.out.Load(cn105.Template(cn105.CmdConfigAck))

	case cn105.CmdSetSettings:
		if cn105.IsKeepAlive(f) {
			d.stats.RecordKeepAlive()
			d.log.Debug("keep-alive from remote")
			return nil, nil
		}
		if f.Len() < cn105.MinSetSettingsLen {
			d.short(f, cn105.MinSetSettingsLen)
			return nil, nil
		}
		d.applyRemoteSettings(f)
		if d.remoteChanged != nil {
			d.remoteChanged()
		}
		d.out.Load(cn105.Template(cn105.CmdControlAck))

	case cn105.CmdInfoRequest:
		if f.Len() < cn105.MinInfoRequestLen {
			d.short(f, cn105.MinInfoRequestLen)
			return nil, nil
		}
		d.buildInfoReport(f.At(cn105.OffsetInfoSelector))

	default:
		d.stats.RecordUnknown()
		d.log.WithField("cmd", fmt.Sprintf("0x%02X", f.Command())).Trace("ignoring unknown command")
		return nil, nil
	}

	return d.send()
}

func (d *Dispatcher) short(f *cn105.Frame, need int) {
	d.stats.RecordShort()
	d.log.WithFields(logrus.Fields{
		"cmd":  cn105.FormatCommand(f.Command()),
		"len":  f.Len(),
		"need": need,
	}).Warn("frame too short for command")
}

func (d *Dispatcher) applyRemoteSettings(f *cn105.Frame) {
	remote := d.states.Remote
	flags1 := f.At(cn105.OffsetSetFlags1)
	flags2 := f.At(cn105.OffsetSetFlags2)

	if flags1&cn105.Flag1Power != 0 {
		remote.SetPower(f.At(cn105.OffsetSetPower))
	}
	if flags1&cn105.Flag1Mode != 0 {
		remote.SetMode(f.At(cn105.OffsetSetMode))
	}
	if flags1&cn105.Flag1Temp != 0 {
		temp := cn105.DecodeTemp(f.At(cn105.OffsetSetTemp))
		remote.SetSetTemp(temp)
		// no room reading on this path; actual tracks two degrees below target
		remote.SetActualTemp(temp - 2)
	}
	if flags1&cn105.Flag1Fan != 0 {
		remote.SetFan(f.At(cn105.OffsetSetFan))
	}
	if flags1&cn105.Flag1Vane != 0 {
		remote.SetVane(f.At(cn105.OffsetSetVane))
	}
	if flags2&cn105.Flag2WideVane != 0 {
		remote.SetWideVane(f.At(cn105.OffsetSetWideVane))
	}
}

func (d *Dispatcher) buildInfoReport(sel byte) {
	emu := d.states.Emulator
	d.out.Load(cn105.Template(cn105.CmdInfoReport))
	d.out.Set(cn105.OffsetInfoSelector, sel)

	switch sel {
	case cn105.InfoSettings:
		d.out.Set(cn105.OffsetInfoPower, emu.Power())
		d.out.Set(cn105.OffsetInfoMode, emu.Mode())
		d.out.Set(cn105.OffsetInfoTempCode, emu.SetTemp())
		d.out.Set(cn105.OffsetInfoFan, emu.Fan())
		d.out.Set(cn105.OffsetInfoVane, emu.Vane())
		d.out.Set(cn105.OffsetInfoWideVane, emu.WideVane())
		d.out.Set(cn105.OffsetInfoTemp, cn105.EncodeTemp(emu.SetTemp()))
	case cn105.InfoRoomTemp:
		d.out.Set(cn105.OffsetInfoRoomTemp, cn105.EncodeTemp(emu.ActualTemp()))
	case cn105.InfoUnknown4:
		d.out.Set(cn105.OffsetInfoSentinel, cn105.InfoUnknown4Sentinel)
	case cn105.InfoStandby:
		d.out.Set(cn105.OffsetInfoSentinel, cn105.InfoStandbySentinel)
	case cn105.InfoTimers, cn105.InfoStatus:
		// acknowledged with an empty report
	}
}

func (d *Dispatcher) send() (*cn105.Frame, error) {
	d.out.AddChecksum()
	reply := d.out.Clone()
	if _, err := d.w.Write(d.out.Bytes()); err != nil {
		return reply, fmt.Errorf("failed to write %s: %w", cn105.FormatCommand(reply.Command()), err)
	}
	d.stats.RecordReply()
	return reply, nil
}
