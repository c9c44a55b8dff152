// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import "fmt"

// RomError is a failure reason reported by the ROM bootloader in the
// status field of a response packet.
type RomError byte

// Known ROM status codes. Anything outside this set decodes to RomOther.
const (
	RomInvalidMessage     RomError = 0x05
	RomFailedToAct        RomError = 0x06
	RomInvalidCrc         RomError = 0x07
	RomFlashWriteError    RomError = 0x08
	RomFlashReadError     RomError = 0x09
	RomFlashReadLengthErr RomError = 0x0A
	RomDeflateError       RomError = 0x0B
	RomOther              RomError = 0xFF
)

// DecodeRomError maps a raw status byte onto a named failure reason.
// The mapping is total: unrecognized codes decode to RomOther.
func DecodeRomError(raw byte) RomError {
	switch RomError(raw) {
	case RomInvalidMessage, RomFailedToAct, RomInvalidCrc,
		RomFlashWriteError, RomFlashReadError, RomFlashReadLengthErr,
		RomDeflateError:
		return RomError(raw)
	default:
		return RomOther
	}
}

// Error implements the error interface
func (e RomError) Error() string {
	switch e {
	case RomInvalidMessage:
		return "invalid message received"
	case RomFailedToAct:
		return "bootloader failed to execute command"
	case RomInvalidCrc:
		return "received message has invalid crc"
	case RomFlashWriteError:
		return "bootloader failed to write to flash"
	case RomFlashReadError:
		return "bootloader failed to read from flash"
	case RomFlashReadLengthErr:
		return "invalid length for flash read"
	case RomDeflateError:
		return "malformed compressed data received"
	default:
		return fmt.Sprintf("bootloader error 0x%02x", byte(e))
	}
}
