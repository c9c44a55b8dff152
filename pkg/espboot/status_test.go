// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import "testing"

func TestDecodeRomError_KnownCodes(t *testing.T) {
	tests := []struct {
		raw  byte
		want RomError
	}{
		{0x05, RomInvalidMessage},
		{0x06, RomFailedToAct},
		{0x07, RomInvalidCrc},
		{0x08, RomFlashWriteError},
		{0x09, RomFlashReadError},
		{0x0A, RomFlashReadLengthErr},
		{0x0B, RomDeflateError},
	}

	for _, tt := range tests {
		if got := DecodeRomError(tt.raw); got != tt.want {
			t.Errorf("DecodeRomError(0x%02X) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeRomError_UnknownCodesAreOther(t *testing.T) {
	// Total mapping: every byte outside 0x05-0x0B decodes to RomOther,
	// including the reserved 0xFF
	for raw := 0; raw <= 0xFF; raw++ {
		if raw >= 0x05 && raw <= 0x0B {
			continue
		}
		if got := DecodeRomError(byte(raw)); got != RomOther {
			t.Errorf("DecodeRomError(0x%02X) = %v, want RomOther", raw, got)
		}
	}
}

func TestRomError_Messages(t *testing.T) {
	if got := RomInvalidCrc.Error(); got != "received message has invalid crc" {
		t.Errorf("RomInvalidCrc message = %q", got)
	}
	if got := RomFlashWriteError.Error(); got != "bootloader failed to write to flash" {
		t.Errorf("RomFlashWriteError message = %q", got)
	}
}
