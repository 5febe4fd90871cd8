// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// cn105emu - CN105 heat pump emulator
//
// Answers a Mitsubishi wired remote as if it were the indoor unit and keeps
// its settings reconciled with an external control engine.

package main

import (
	"os"

	"github.com/Thermoquad/cn105emu/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
