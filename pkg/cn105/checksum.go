// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

// Checksum computes the CN105 additive checksum over data[0:length-1].
// The result is (0xFC - sum) mod 256.
func Checksum(data []byte, length int) byte {
	var sum byte
	for i := 0; i < length-1 && i < len(data); i++ {
		sum += data[i]
	}
	return StartByte - sum
}

// ComputeChecksum returns the checksum over the frame's declared length
func (f *Frame) ComputeChecksum() byte {
	return Checksum(f.buf[:], f.length)
}

// VerifyChecksum compares the computed checksum with the last byte of the
// declared frame
func (f *Frame) VerifyChecksum() bool {
	if f.length < 1 || f.length > f.n {
		return false
	}
	return f.buf[f.length-1] == f.ComputeChecksum()
}

// AddChecksum writes the checksum into the last byte of the declared frame
func (f *Frame) AddChecksum() {
	f.Set(f.length-1, f.ComputeChecksum())
}
