// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import "strings"

// Table maps wire codes to display tokens. Codes and tokens are index aligned.
type Table struct {
	Name   string
	codes  []byte
	tokens []string
}

func newTable(name string, codes []byte, tokens []string) *Table {
	if len(codes) != len(tokens) {
		panic("cn105: table " + name + " has mismatched codes and tokens")
	}
	return &Table{Name: name, codes: codes, tokens: tokens}
}

// Wire lookup tables
var (
	PowerTable     = newTable("POWER", []byte{0x00, 0x01}, []string{"OFF", "ON"})
	ModeTable      = newTable("MODE", []byte{0x01, 0x02, 0x03, 0x07, 0x08}, []string{"HEAT", "DRY", "COOL", "FAN", "AUTO"})
	FanTable       = newTable("FAN", []byte{0x00, 0x01, 0x02, 0x03, 0x05, 0x06}, []string{"AUTO", "QUIET", "1", "2", "3", "4"})
	VaneTable      = newTable("VANE", []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x07}, []string{"AUTO", "1", "2", "3", "4", "5", "SWING"})
	WideVaneTable  = newTable("WIDEVANE", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x08, 0x0C}, []string{"<<", "<", "|", ">", ">>", "<>", "SWING"})
	TimerModeTable = newTable("TIMER_MODE", []byte{0x00, 0x01, 0x02, 0x03}, []string{"NONE", "OFF", "ON", "BOTH"})
)

// Token returns the token for a wire code, falling back to the first token
// when the code is unknown
func (t *Table) Token(code byte) string {
	if i := t.IndexOfCode(code); i >= 0 {
		return t.tokens[i]
	}
	return t.tokens[0]
}

// Code returns the wire code for a token, compared case-insensitively
func (t *Table) Code(token string) (byte, bool) {
	i := t.Index(token)
	if i < 0 {
		return 0, false
	}
	return t.codes[i], true
}

// Index returns the position of a token, or -1 if not found
func (t *Table) Index(token string) int {
	for i, tok := range t.tokens {
		if strings.EqualFold(tok, token) {
			return i
		}
	}
	return -1
}

// IndexOfCode returns the position of a wire code, or -1 if not found
func (t *Table) IndexOfCode(code byte) int {
	for i, c := range t.codes {
		if c == code {
			return i
		}
	}
	return -1
}

// Contains reports whether code is a defined wire code
func (t *Table) Contains(code byte) bool {
	return t.IndexOfCode(code) >= 0
}

// Codes returns a copy of the wire codes
func (t *Table) Codes() []byte {
	return append([]byte(nil), t.codes...)
}

// Tokens returns a copy of the tokens
func (t *Table) Tokens() []string {
	return append([]string(nil), t.tokens...)
}

// Len returns the number of entries
func (t *Table) Len() int {
	return len(t.codes)
}

// IntTable maps wire codes to numeric values
type IntTable struct {
	Name   string
	codes  []byte
	values []int
}

// Legacy temperature encodings
var (
	TempTable     = newIntTable("TEMP", 0x00, 0x0F, 31, -1)
	RoomTempTable = newIntTable("ROOM_TEMP", 0x00, 0x1F, 10, 1)
)

func newIntTable(name string, first, last byte, start, step int) *IntTable {
	t := &IntTable{Name: name}
	v := start
	for c := int(first); c <= int(last); c++ {
		t.codes = append(t.codes, byte(c))
		t.values = append(t.values, v)
		v += step
	}
	return t
}

// Value returns the number for a wire code, falling back to the first value
func (t *IntTable) Value(code byte) int {
	for i, c := range t.codes {
		if c == code {
			return t.values[i]
		}
	}
	return t.values[0]
}

// Code returns the wire code for a value
func (t *IntTable) Code(value int) (byte, bool) {
	for i, v := range t.values {
		if v == value {
			return t.codes[i], true
		}
	}
	return 0, false
}
