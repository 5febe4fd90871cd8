// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured frame
type Direction uint8

const (
	// DirRemoteToHeatPump is traffic sent by the remote
	DirRemoteToHeatPump Direction = iota
	// DirHeatPumpToRemote is traffic sent by the heat pump (or the emulator)
	DirHeatPumpToRemote
)

// String returns the short direction label used in logs
func (d Direction) String() string {
	if d == DirHeatPumpToRemote {
		return "HP->RE"
	}
	return "RE->HP"
}

// CaptureRecord is one captured frame. Captures are a CBOR sequence of records.
type CaptureRecord struct {
	Time      int64     `cbor:"1,keyasint"` // unix ms
	Direction Direction `cbor:"2,keyasint"`
	Data      []byte    `cbor:"3,keyasint"`
	Valid     bool      `cbor:"4,keyasint"`
}

// CaptureWriter appends frames to a capture stream
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter creates a writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// WriteFrame records a frame
func (c *CaptureWriter) WriteFrame(dir Direction, f *Frame, valid bool) error {
	ts := f.Timestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := CaptureRecord{
		Time:      ts.UnixMilli(),
		Direction: dir,
		Data:      append([]byte(nil), f.Bytes()...),
		Valid:     valid,
	}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	return nil
}

// CaptureReader reads records from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream
func (c *CaptureReader) Next() (*CaptureRecord, error) {
	var rec CaptureRecord
	if err := c.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode capture record: %w", err)
	}
	if len(rec.Data) > MaxFrameSize {
		return nil, fmt.Errorf("capture record of %d bytes: %w", len(rec.Data), ErrOverflow)
	}
	return &rec, nil
}

// Frame returns the record bytes as a frame
func (r *CaptureRecord) Frame() *Frame {
	f := NewFrame(r.Data)
	f.timestamp = time.UnixMilli(r.Time)
	return f
}
