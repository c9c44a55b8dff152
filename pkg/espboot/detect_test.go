// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"errors"
	"strings"
	"testing"
)

func TestDetectChip_KnownMagics(t *testing.T) {
	tests := []struct {
		magic uint32
		want  Chip
	}{
		{0xFFF0C101, ChipESP8266},
		{0x00F01D83, ChipESP32},
		{0x000007C6, ChipESP32S2},
		{0x6921506F, ChipESP32C3},
		{0x1B31506F, ChipESP32C3},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			chip, err := DetectChip(tt.magic)
			if err != nil {
				t.Fatalf("DetectChip(%#x) failed: %v", tt.magic, err)
			}
			if chip != tt.want {
				t.Errorf("DetectChip(%#x) = %v, want %v", tt.magic, chip, tt.want)
			}
		})
	}
}

func TestDetectChip_UnknownMagicPreservesValue(t *testing.T) {
	_, err := DetectChip(0xDEADBEEF)
	if err == nil {
		t.Fatal("DetectChip accepted an unknown magic value")
	}

	var de *ChipDetectError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T, want *ChipDetectError", err)
	}
	if de.Magic != 0xDEADBEEF {
		t.Errorf("preserved magic = %#x, want 0xdeadbeef", de.Magic)
	}
	if !strings.Contains(err.Error(), "0xdeadbeef") {
		t.Errorf("message %q does not show the raw value", err.Error())
	}
}

func TestDetectFlashSize(t *testing.T) {
	tests := []struct {
		id        byte
		want      FlashSize
		wantBytes uint32
	}{
		{0x12, Flash256KB, 256 * 1024},
		{0x13, Flash512KB, 512 * 1024},
		{0x14, Flash1MB, 1024 * 1024},
		{0x15, Flash2MB, 2 * 1024 * 1024},
		{0x16, Flash4MB, 4 * 1024 * 1024},
		{0x17, Flash8MB, 8 * 1024 * 1024},
		{0x18, Flash16MB, 16 * 1024 * 1024},
		{0x19, Flash32MB, 32 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			size, err := DetectFlashSize(tt.id)
			if err != nil {
				t.Fatalf("DetectFlashSize(%#x) failed: %v", tt.id, err)
			}
			if size != tt.want {
				t.Errorf("DetectFlashSize(%#x) = %v, want %v", tt.id, size, tt.want)
			}
			if size.Bytes() != tt.wantBytes {
				t.Errorf("Bytes() = %d, want %d", size.Bytes(), tt.wantBytes)
			}
		})
	}
}

func TestDetectFlashSize_UnknownIDPreservesValue(t *testing.T) {
	for _, id := range []byte{0x00, 0x11, 0x1A, 0xFF} {
		_, err := DetectFlashSize(id)
		if err == nil {
			t.Errorf("DetectFlashSize(%#x) accepted an unknown id", id)
			continue
		}

		var fe *FlashDetectError
		if !errors.As(err, &fe) {
			t.Fatalf("error type = %T, want *FlashDetectError", err)
		}
		if fe.ID != id {
			t.Errorf("preserved id = %#x, want %#x", fe.ID, id)
		}
	}
}
