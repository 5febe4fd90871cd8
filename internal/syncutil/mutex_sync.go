// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !deadlock

// Package syncutil provides the mutex types shared between the emulator run
// loop and its observers. Build with -tags=deadlock to swap in
// github.com/sasha-s/go-deadlock.
package syncutil

import "sync"

// Mutex wraps sync.Mutex
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex
type RWMutex struct {
	sync.RWMutex
}
