// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

// Chip represents a recognized chip variant
type Chip int

const (
	ChipESP8266 Chip = iota
	ChipESP32
	ChipESP32S2
	ChipESP32C3
)

// String returns the marketing name for the chip
func (c Chip) String() string {
	switch c {
	case ChipESP8266:
		return "ESP8266"
	case ChipESP32:
		return "ESP32"
	case ChipESP32S2:
		return "ESP32-S2"
	case ChipESP32C3:
		return "ESP32-C3"
	default:
		return "Unknown"
	}
}

// chipMagics is the static, versioned table of known magic words read
// from ChipMagicRegAddr. ESP32-C3 has one entry per silicon revision.
var chipMagics = map[uint32]Chip{
	0xFFF0C101: ChipESP8266,
	0x00F01D83: ChipESP32,
	0x000007C6: ChipESP32S2,
	0x6921506F: ChipESP32C3,
	0x1B31506F: ChipESP32C3,
}

// DetectChip maps a magic register value onto a chip variant. On a miss
// the raw value is preserved in the error, never silently mapped to a
// default.
func DetectChip(magic uint32) (Chip, error) {
	chip, ok := chipMagics[magic]
	if !ok {
		return 0, &ChipDetectError{Magic: magic}
	}
	return chip, nil
}

// FlashSize is the capacity byte from the flash chip's RDID response
type FlashSize byte

// Recognized flash geometries
const (
	Flash256KB FlashSize = 0x12
	Flash512KB FlashSize = 0x13
	Flash1MB   FlashSize = 0x14
	Flash2MB   FlashSize = 0x15
	Flash4MB   FlashSize = 0x16
	Flash8MB   FlashSize = 0x17
	Flash16MB  FlashSize = 0x18
	Flash32MB  FlashSize = 0x19
)

// DetectFlashSize maps a flash id byte onto a known geometry. On a miss
// the raw byte is preserved in the error.
func DetectFlashSize(id byte) (FlashSize, error) {
	if id < byte(Flash256KB) || id > byte(Flash32MB) {
		return 0, &FlashDetectError{ID: id}
	}
	return FlashSize(id), nil
}

// Bytes returns the flash capacity in bytes
func (s FlashSize) Bytes() uint32 {
	return 0x40000 << (byte(s) - byte(Flash256KB))
}

// String returns the capacity in human units
func (s FlashSize) String() string {
	switch s {
	case Flash256KB:
		return "256KB"
	case Flash512KB:
		return "512KB"
	case Flash1MB:
		return "1MB"
	case Flash2MB:
		return "2MB"
	case Flash4MB:
		return "4MB"
	case Flash8MB:
		return "8MB"
	case Flash16MB:
		return "16MB"
	case Flash32MB:
		return "32MB"
	default:
		return "Unknown"
	}
}
