// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import "testing"

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_KnownFrames(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "connect request",
			data:     []byte{0xFC, 0x5A, 0x01, 0x30, 0x02, 0xCA, 0x01, 0x00},
			expected: 0xA8,
		},
		{
			name:     "short connect request",
			data:     []byte{0xFC, 0x5A, 0x01, 0x30, 0x01, 0x00, 0x00},
			expected: 0x74,
		},
		{
			name:     "connect ack template",
			data:     connectAckTemplate,
			expected: 0x54,
		},
		{
			name:     "config ack template",
			data:     configAckTemplate,
			expected: 0xA9,
		},
		{
			name:     "control ack template",
			data:     controlAckTemplate,
			expected: 0x5E,
		},
		{
			name:     "info report template",
			data:     infoReportTemplate,
			expected: 0x5D,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum(tt.data, len(tt.data))
			if got != tt.expected {
				t.Errorf("Checksum() = 0x%02X, expected 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestChecksum_UsesDeclaredLength(t *testing.T) {
	// Trailing bytes beyond the declared length must not affect the result
	data := []byte{0xFC, 0x5A, 0x01, 0x30, 0x01, 0x00, 0x74, 0xFF, 0xFF}
	if got := Checksum(data, 7); got != 0x74 {
		t.Errorf("Checksum() = 0x%02X, expected 0x74", got)
	}
}

func TestFrame_VerifyChecksum(t *testing.T) {
	f := NewFrame([]byte{0xFC, 0x5A, 0x01, 0x30, 0x02, 0xCA, 0x01, 0xA8})
	if !f.VerifyChecksum() {
		t.Fatal("valid frame failed verification")
	}

	bad := NewFrame([]byte{0xFC, 0x5A, 0x01, 0x30, 0x02, 0xCA, 0x01, 0xA9})
	if bad.VerifyChecksum() {
		t.Error("frame with wrong checksum passed verification")
	}
}

func TestFrame_FlippedByteFailsVerification(t *testing.T) {
	valid := BuildRequest(CmdSetSettings, []byte{
		0x01, 0x07, 0x00, 0x01, 0x03, 0x0A, 0x00, 0x03,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xAC, 0x00,
	})
	if !valid.VerifyChecksum() {
		t.Fatal("built frame failed verification")
	}

	for i := 0; i < valid.Len()-1; i++ {
		f := valid.Clone()
		f.Set(i, f.At(i)^0x01)
		if f.VerifyChecksum() {
			t.Errorf("flipping byte %d did not break the checksum", i)
		}
	}
}

func TestFrame_AddChecksumIdempotent(t *testing.T) {
	f := NewFrame(Template(CmdInfoReport))
	f.Set(OffsetInfoSelector, InfoRoomTemp)
	f.Set(OffsetInfoRoomTemp, 0xA4)
	f.AddChecksum()
	first := f.At(f.Len() - 1)

	f.AddChecksum()
	if f.At(f.Len()-1) != first {
		t.Errorf("second AddChecksum changed checksum: 0x%02X -> 0x%02X", first, f.At(f.Len()-1))
	}
	if f.ComputeChecksum() != first {
		t.Errorf("ComputeChecksum() = 0x%02X, expected 0x%02X", f.ComputeChecksum(), first)
	}
}
