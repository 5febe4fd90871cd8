// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import (
	"bytes"
	"fmt"
	"time"
)

// Frame is a fixed-capacity CN105 frame buffer.
//
// The declared length is the length announced by the header (payload length + 6).
// Until the header has been read it holds the provisional length.
type Frame struct {
	buf       [MaxFrameSize]byte
	n         int
	length    int
	timestamp time.Time
}

// NewFrame builds a frame from raw bytes. The declared length is taken from the
// header when present, otherwise from len(data).
func NewFrame(data []byte) *Frame {
	if len(data) > MaxFrameSize {
		panic(fmt.Sprintf("cn105: frame of %d bytes exceeds capacity %d", len(data), MaxFrameSize))
	}
	f := &Frame{}
	f.n = copy(f.buf[:], data)
	f.length = f.n
	if f.n > OffsetPayloadLen && f.headerValid() {
		if l := int(f.buf[OffsetPayloadLen]) + FrameOverhead; l <= MaxFrameSize {
			f.length = l
		}
	}
	return f
}

// Reset empties the frame
func (f *Frame) Reset() {
	f.n = 0
	f.length = 0
	f.timestamp = time.Time{}
}

// Len returns the number of bytes held
func (f *Frame) Len() int {
	return f.n
}

// DeclaredLength returns the protocol length of the frame
func (f *Frame) DeclaredLength() int {
	return f.length
}

// Command returns the command byte, or 0 if the frame is shorter than two bytes
func (f *Frame) Command() byte {
	if f.n <= OffsetCommand {
		return 0
	}
	return f.buf[OffsetCommand]
}

// PayloadLength returns the payload length byte, or 0 before the header is complete
func (f *Frame) PayloadLength() int {
	if f.n <= OffsetPayloadLen {
		return 0
	}
	return int(f.buf[OffsetPayloadLen])
}

// Payload returns the bytes between header and checksum
func (f *Frame) Payload() []byte {
	if f.n <= HeaderSize {
		return nil
	}
	end := f.n - 1
	if f.length > 0 && f.length-1 < end {
		end = f.length - 1
	}
	return f.buf[HeaderSize:end]
}

// Bytes returns the held bytes. The slice aliases the frame buffer.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.n]
}

// Timestamp returns when the frame was completed
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// At returns the byte at offset i. Offsets outside the held bytes panic.
func (f *Frame) At(i int) byte {
	if i < 0 || i >= f.n {
		panic(fmt.Sprintf("cn105: read offset %d out of range [0,%d) on cmd 0x%02X", i, f.n, f.Command()))
	}
	return f.buf[i]
}

// Set writes the byte at offset i. Offsets outside the held bytes panic.
func (f *Frame) Set(i int, b byte) {
	if i < 0 || i >= f.n {
		panic(fmt.Sprintf("cn105: write offset %d out of range [0,%d) on cmd 0x%02X", i, f.n, f.Command()))
	}
	f.buf[i] = b
}

// Load replaces the frame contents with a template and sets the declared
// length to the template length
func (f *Frame) Load(tmpl []byte) {
	if len(tmpl) > MaxFrameSize {
		panic(fmt.Sprintf("cn105: template of %d bytes exceeds capacity %d", len(tmpl), MaxFrameSize))
	}
	f.n = copy(f.buf[:], tmpl)
	f.length = f.n
}

// Clone returns an independent copy of the frame
func (f *Frame) Clone() *Frame {
	c := *f
	return &c
}

// Equal reports whether two frames hold the same bytes
func (f *Frame) Equal(o *Frame) bool {
	if o == nil || f.n != o.n {
		return false
	}
	return bytes.Equal(f.buf[:f.n], o.buf[:o.n])
}

// append adds one byte. Callers guarantee capacity.
func (f *Frame) append(b byte) {
	f.buf[f.n] = b
	f.n++
}

func (f *Frame) headerValid() bool {
	return f.buf[OffsetStart] == StartByte &&
		f.buf[OffsetHeader2] == Header2 &&
		f.buf[OffsetHeader3] == Header3
}
