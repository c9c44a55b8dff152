// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package espboot implements the serial command protocol spoken by the
// ESP-family ROM bootloaders.
//
// The package provides SLIP frame encoding/decoding, the request/response
// command engine with retry handling, chip and flash-geometry detection,
// and partition table validation. Serial port ownership is exclusive to a
// Connection for the duration of a flashing session.
package espboot

import "time"

// SLIP framing bytes
const (
	SlipEnd    = 0xC0
	SlipEsc    = 0xDB
	SlipEscEnd = 0xDC
	SlipEscEsc = 0xDD
)

// Frame size limits
const (
	// MaxFrameSize bounds a decoded frame. Responses are small (8 byte
	// header plus status payload) but register dumps can run longer.
	MaxFrameSize = 4096
)

// Packet direction bytes
const (
	DirRequest  = 0x00
	DirResponse = 0x01
)

// ROM bootloader command opcodes
const (
	OpFlashBegin   = 0x02
	OpFlashData    = 0x03
	OpFlashEnd     = 0x04
	OpMemBegin     = 0x05
	OpMemEnd       = 0x06
	OpMemData      = 0x07
	OpSync         = 0x08
	OpWriteReg     = 0x09
	OpReadReg      = 0x0A
	OpSpiSetParams = 0x0B
	OpSpiAttach    = 0x0D
	OpChangeBaud   = 0x0F
)

// Checksum seed for data commands
const checksumInit = 0xEF

// Device registers
const (
	// ChipMagicRegAddr holds the per-family magic word used for detection
	ChipMagicRegAddr = 0x40001000
)

// Flash geometry
const (
	FlashSectorSize = 0x1000
	FlashBlockSize  = 0x400
	FlashPageSize   = 0x100
	FlashStatusMask = 0xFFFF
)

// Default command engine configuration
const (
	DefaultTimeout  = 3 * time.Second
	DefaultAttempts = 3
	SyncAttempts    = 5
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateFrame
	stateEscape
)
