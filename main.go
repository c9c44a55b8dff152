// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Amadou - ESP ROM bootloader flashing tool
//
// A CLI tool for loading firmware onto the ESP-family microcontrollers
// used in Thermoquad appliance controllers, over a direct serial port or
// a Slate WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/amadou/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
