// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import (
	"errors"
	"fmt"
)

// Decoder errors
var (
	ErrChecksum   = errors.New("checksum mismatch")
	ErrOverflow   = errors.New("declared length exceeds frame capacity")
	ErrShortFrame = errors.New("frame too short for command")
)

// FrameError reports a rejected frame together with the bytes that were received
type FrameError struct {
	Frame *Frame
	Err   error
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("%v (cmd=0x%02X len=%d)", e.Err, e.Frame.Command(), e.Frame.Len())
}

// Unwrap returns the underlying sentinel error
func (e *FrameError) Unwrap() error {
	return e.Err
}
