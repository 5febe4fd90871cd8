// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import "time"

// Decoder implements the CN105 frame decoder state machine.
//
// Bytes are consumed one at a time. Bytes other than StartByte are ignored
// while idle. After the start byte the provisional length applies until the
// fifth byte completes the header.
type Decoder struct {
	frame   Frame
	started bool
	now     func() time.Time
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// Reset returns the decoder to idle, dropping any partial frame
func (d *Decoder) Reset() {
	d.started = false
	d.frame.Reset()
}

// Started reports whether a frame is currently being built
func (d *Decoder) Started() bool {
	return d.started
}

// Buffered returns the bytes of the frame currently being built
func (d *Decoder) Buffered() []byte {
	return d.frame.Bytes()
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame once the declared length is reached and the
// checksum matches. A rejected frame is returned as a *FrameError and the
// decoder resets in both cases.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if !d.started {
		if b != StartByte {
			return nil, nil
		}
		d.frame.Reset()
		d.frame.length = ProvisionalLength
		d.frame.append(b)
		d.started = true
		return nil, nil
	}

	d.frame.append(b)

	if d.frame.n == HeaderSize && d.frame.buf[OffsetHeader2] == Header2 && d.frame.buf[OffsetHeader3] == Header3 {
		d.frame.length = int(d.frame.buf[OffsetPayloadLen]) + FrameOverhead
		if d.frame.length > MaxFrameSize {
			return nil, d.reject(ErrOverflow)
		}
	}

	if d.frame.n < d.frame.length {
		return nil, nil
	}

	out := d.frame.Clone()
	out.timestamp = d.now()
	d.Reset()

	if !out.VerifyChecksum() {
		return nil, &FrameError{Frame: out, Err: ErrChecksum}
	}
	return out, nil
}

// Decode feeds a byte slice through the decoder, calling fn for every
// completed or rejected frame
func (d *Decoder) Decode(data []byte, fn func(*Frame, error)) {
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if frame != nil || err != nil {
			fn(frame, err)
		}
	}
}

func (d *Decoder) reject(err error) error {
	out := d.frame.Clone()
	out.timestamp = d.now()
	d.Reset()
	return &FrameError{Frame: out, Err: err}
}
