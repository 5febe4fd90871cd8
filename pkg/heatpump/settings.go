// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package heatpump

import (
	"fmt"
	"math"
	"strings"

	"github.com/Thermoquad/cn105emu/pkg/cn105"
)

// Settings is the token based record exchanged with an external control engine
type Settings struct {
	Power           string  `json:"power" yaml:"power"`
	Mode            string  `json:"mode" yaml:"mode"`
	Fan             string  `json:"fan" yaml:"fan"`
	Vane            string  `json:"vane" yaml:"vane"`
	WideVane        string  `json:"wideVane" yaml:"wide_vane"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	RoomTemperature float64 `json:"roomTemperature,omitempty" yaml:"room_temperature"`
}

// Complete reports whether every commanded field is populated
func (s Settings) Complete() bool {
	return s.Power != "" && s.Mode != "" && s.Fan != "" &&
		s.Vane != "" && s.WideVane != "" && s.Temperature > 0
}

// Matches compares the fields in ReconciledFields, tokens case-insensitively
// and the temperature to the nearest degree. The wide vane is ignored like it
// is by State.Equal.
func (s Settings) Matches(o Settings) bool {
	return strings.EqualFold(s.Power, o.Power) &&
		strings.EqualFold(s.Mode, o.Mode) &&
		strings.EqualFold(s.Fan, o.Fan) &&
		strings.EqualFold(s.Vane, o.Vane) &&
		math.Round(s.Temperature) == math.Round(o.Temperature)
}

// String returns a compact one-line form
func (s Settings) String() string {
	return fmt.Sprintf("power=%s mode=%s fan=%s vane=%s wide=%s temp=%.1f room=%.1f",
		s.Power, s.Mode, s.Fan, s.Vane, s.WideVane, s.Temperature, s.RoomTemperature)
}

// Settings returns the state as engine tokens
func (s *State) Settings() Settings {
	return Settings{
		Power:           cn105.PowerTable.Token(s.Power()),
		Mode:            cn105.ModeTable.Token(s.Mode()),
		Fan:             cn105.FanTable.Token(s.Fan()),
		Vane:            cn105.VaneTable.Token(s.Vane()),
		WideVane:        cn105.WideVaneTable.Token(s.WideVane()),
		Temperature:     float64(s.SetTemp()),
		RoomTemperature: float64(s.ActualTemp()),
	}
}

// ApplySettings writes engine tokens into the state. Unknown tokens map to
// code 0, which the field setters then accept or reject. A zero room
// temperature leaves the actual temperature untouched.
func (s *State) ApplySettings(in Settings) {
	s.SetPower(tokenCode(cn105.PowerTable, in.Power))
	s.SetMode(tokenCode(cn105.ModeTable, in.Mode))
	s.SetFan(tokenCode(cn105.FanTable, in.Fan))
	s.SetVane(tokenCode(cn105.VaneTable, in.Vane))
	s.SetWideVane(tokenCode(cn105.WideVaneTable, in.WideVane))
	s.SetSetTemp(tempByte(in.Temperature))
	if in.RoomTemperature != 0 {
		s.SetActualTemp(tempByte(in.RoomTemperature))
	}
}

func tokenCode(t *cn105.Table, token string) byte {
	code, ok := t.Code(token)
	if !ok {
		return 0
	}
	return code
}

// tempByte rounds to whole degrees. Values outside a byte map to 0 so the
// setter rejects them.
func tempByte(t float64) byte {
	r := math.Round(t)
	if math.IsNaN(r) || r < 0 || r > 255 {
		return 0
	}
	return byte(r)
}
