// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build deadlock

// Package syncutil provides the mutex types shared between the emulator run
// loop and its observers, here with lock-order and timeout detection.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex wraps deadlock.Mutex
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex
type RWMutex struct {
	deadlock.RWMutex
}
