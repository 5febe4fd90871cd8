// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package heatpump holds the validated heat-pump settings shared by the
// remote, the emulator and the external control engine.
package heatpump

import (
	"github.com/Thermoquad/cn105emu/pkg/cn105"
	"github.com/sirupsen/logrus"
)

// Field identifies one heat-pump setting
type Field int

const (
	FieldPower Field = iota
	FieldMode
	FieldFan
	FieldSetTemp
	FieldActualTemp
	FieldVane
	FieldWideVane
)

// AllFields lists every field in display order
var AllFields = []Field{FieldPower, FieldMode, FieldFan, FieldSetTemp, FieldActualTemp, FieldVane, FieldWideVane}

// ReconciledFields are the fields that decide whether two states differ.
// Actual temperature is a sensor reading and wide vane is not tracked by every
// remote, so neither takes part in change detection.
var ReconciledFields = []Field{FieldPower, FieldMode, FieldFan, FieldSetTemp, FieldVane}

// Temperature limits in whole degrees. The upper bound is the largest value
// the half-degree wire encoding can carry.
const (
	MinTemp = 0x10
	MaxTemp = 0x3F
)

// Defaults applied by New
const (
	DefaultPower      = 0x01
	DefaultMode       = 0x02
	DefaultFan        = 0x03
	DefaultSetTemp    = 20
	DefaultActualTemp = 18
	DefaultVane       = 0x03
	DefaultWideVane   = 0x01
)

// String returns the field name used in logs and the status view
func (f Field) String() string {
	switch f {
	case FieldPower:
		return "power"
	case FieldMode:
		return "mode"
	case FieldFan:
		return "fan"
	case FieldSetTemp:
		return "set_temp"
	case FieldActualTemp:
		return "actual_temp"
	case FieldVane:
		return "vane"
	case FieldWideVane:
		return "wide_vane"
	default:
		return "unknown"
	}
}

// Table returns the lookup table for a coded field, or nil for temperatures
func (f Field) Table() *cn105.Table {
	switch f {
	case FieldPower:
		return cn105.PowerTable
	case FieldMode:
		return cn105.ModeTable
	case FieldFan:
		return cn105.FanTable
	case FieldVane:
		return cn105.VaneTable
	case FieldWideVane:
		return cn105.WideVaneTable
	default:
		return nil
	}
}

// Valid reports whether v is inside the field's domain.
//
// Both temperatures are sent to the remote as (t<<1)|0x80, the set point in
// the 0x02 report and the actual temperature in the 0x03 report, so values
// above MaxTemp would lose their top bit on the wire.
func (f Field) Valid(v byte) bool {
	if t := f.Table(); t != nil {
		return t.Contains(v)
	}
	return v >= MinTemp && v <= MaxTemp
}

// State is one validated set of heat-pump settings.
//
// Writes outside a field's domain are logged and dropped, leaving the field
// at its previous value.
type State struct {
	name     string
	fields   [numFields]byte
	rejected uint64
	log      logrus.FieldLogger
}

const numFields = 7

// New creates a state holding the default settings. A nil logger uses the
// logrus standard logger.
func New(name string, log logrus.FieldLogger) *State {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &State{name: name, log: log.WithField("state", name)}
	s.fields[FieldPower] = DefaultPower
	s.fields[FieldMode] = DefaultMode
	s.fields[FieldFan] = DefaultFan
	s.fields[FieldSetTemp] = DefaultSetTemp
	s.fields[FieldActualTemp] = DefaultActualTemp
	s.fields[FieldVane] = DefaultVane
	s.fields[FieldWideVane] = DefaultWideVane
	return s
}

// Name returns the instance name
func (s *State) Name() string { return s.name }

// Get returns a field value
func (s *State) Get(f Field) byte {
	return s.fields[f]
}

// Set writes a field if v is inside its domain
func (s *State) Set(f Field, v byte) {
	if !f.Valid(v) {
		s.rejected++
		s.log.WithFields(logrus.Fields{
			"field": f.String(),
			"value": v,
		}).Warn("rejected out-of-range write")
		return
	}
	s.fields[f] = v
}

// Rejected returns the number of dropped writes
func (s *State) Rejected() uint64 {
	return s.rejected
}

func (s *State) Power() byte      { return s.fields[FieldPower] }
func (s *State) Mode() byte       { return s.fields[FieldMode] }
func (s *State) Fan() byte        { return s.fields[FieldFan] }
func (s *State) SetTemp() byte    { return s.fields[FieldSetTemp] }
func (s *State) ActualTemp() byte { return s.fields[FieldActualTemp] }
func (s *State) Vane() byte       { return s.fields[FieldVane] }
func (s *State) WideVane() byte   { return s.fields[FieldWideVane] }

func (s *State) SetPower(v byte)      { s.Set(FieldPower, v) }
func (s *State) SetMode(v byte)       { s.Set(FieldMode, v) }
func (s *State) SetFan(v byte)        { s.Set(FieldFan, v) }
func (s *State) SetSetTemp(v byte)    { s.Set(FieldSetTemp, v) }
func (s *State) SetActualTemp(v byte) { s.Set(FieldActualTemp, v) }
func (s *State) SetVane(v byte)       { s.Set(FieldVane, v) }
func (s *State) SetWideVane(v byte)   { s.Set(FieldWideVane, v) }

// Equal compares the ReconciledFields of two states
func (s *State) Equal(o *State) bool {
	return len(s.Diff(o)) == 0
}

// Diff returns the ReconciledFields whose values differ
func (s *State) Diff(o *State) []Field {
	var diff []Field
	for _, f := range ReconciledFields {
		if s.fields[f] != o.fields[f] {
			diff = append(diff, f)
		}
	}
	return diff
}

// CopyFrom copies every field from o
func (s *State) CopyFrom(o *State) {
	s.fields = o.fields
}

// Clone returns an independent copy under a new name
func (s *State) Clone(name string) *State {
	return &State{name: name, fields: s.fields, log: s.log.WithField("state", name)}
}

// Snapshot is an immutable view of a State for display
type Snapshot struct {
	Name       string          `json:"name"`
	Power      string          `json:"power"`
	Mode       string          `json:"mode"`
	Fan        string          `json:"fan"`
	SetTemp    int             `json:"setTemp"`
	ActualTemp int             `json:"actualTemp"`
	Vane       string          `json:"vane"`
	WideVane   string          `json:"wideVane"`
	Raw        [numFields]byte `json:"raw"`
	Rejected   uint64          `json:"rejected"`
}

// Snapshot returns the display view of the state
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Name:       s.name,
		Power:      cn105.PowerTable.Token(s.Power()),
		Mode:       cn105.ModeTable.Token(s.Mode()),
		Fan:        cn105.FanTable.Token(s.Fan()),
		SetTemp:    int(s.SetTemp()),
		ActualTemp: int(s.ActualTemp()),
		Vane:       cn105.VaneTable.Token(s.Vane()),
		WideVane:   cn105.WideVaneTable.Token(s.WideVane()),
		Raw:        s.fields,
		Rejected:   s.Rejected(),
	}
}
