// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package emulator

import "github.com/Thermoquad/cn105emu/pkg/heatpump"

// Engine is the capability the emulator needs from an external control engine.
//
// Implementations run their own poll loop and must be safe for use from the
// emulator goroutine while that loop runs.
type Engine interface {
	// Current returns the engine's latest settings. ok is false until the
	// engine has reported anything.
	Current() (settings heatpump.Settings, ok bool)

	// Want records settings for the engine to apply and raises the pending
	// flag. It must not block on the engine applying them.
	Want(settings heatpump.Settings)

	// Pending reports whether wanted settings have not yet been applied
	Pending() bool
}
