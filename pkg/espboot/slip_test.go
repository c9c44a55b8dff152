// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
	}{
		{
			name:    "plain payload",
			payload: []byte{0x01, 0x02, 0x03},
			want:    []byte{SlipEnd, 0x01, 0x02, 0x03, SlipEnd},
		},
		{
			name:    "end byte escaped",
			payload: []byte{0xC0},
			want:    []byte{SlipEnd, SlipEsc, SlipEscEnd, SlipEnd},
		},
		{
			name:    "esc byte escaped",
			payload: []byte{0xDB},
			want:    []byte{SlipEnd, SlipEsc, SlipEscEsc, SlipEnd},
		},
		{
			name:    "mixed delimiters",
			payload: []byte{0x00, 0xC0, 0xDB, 0xFF},
			want:    []byte{SlipEnd, 0x00, SlipEsc, SlipEscEnd, SlipEsc, SlipEscEsc, 0xFF, SlipEnd},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeFrame(tt.payload)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeFrame() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"delimiter-valued bytes", []byte{0xC0, 0xDB, 0xC0, 0xDB}},
		{"command-shaped payload", SyncCommand().Encode()},
		{"max-size payload", bytes.Repeat([]byte{0xC0}, MaxFrameSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(EncodeFrame(tt.payload))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("round trip mismatch: got % X, want % X", got, tt.payload)
			}
		})
	}
}

func TestDecode_BrokenEscape(t *testing.T) {
	// ESC must be followed by ESC_END or ESC_ESC
	stream := []byte{SlipEnd, 0x01, SlipEsc, 0x42, 0x02, SlipEnd}

	_, err := Decode(stream)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("Decode error = %v, want ErrFraming", err)
	}
}

func TestDecode_Oversized(t *testing.T) {
	// One byte past the frame limit, with no terminating END yet: the
	// size violation must be reported before the payload is interpreted
	stream := make([]byte, 0, MaxFrameSize+2)
	stream = append(stream, SlipEnd)
	stream = append(stream, bytes.Repeat([]byte{0xAA}, MaxFrameSize+1)...)

	_, err := Decode(stream)
	if !errors.Is(err, ErrOversized) {
		t.Fatalf("Decode error = %v, want ErrOversized", err)
	}
}

func TestDecoder_ResyncAfterError(t *testing.T) {
	d := NewDecoder()

	// Broken escape aborts the current frame
	for _, b := range []byte{SlipEnd, 0x01, SlipEsc} {
		if _, err := d.DecodeByte(b); err != nil {
			t.Fatalf("unexpected error mid-frame: %v", err)
		}
	}
	if _, err := d.DecodeByte(0x42); !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}

	// The next complete frame decodes cleanly
	var frame []byte
	var err error
	for _, b := range EncodeFrame([]byte{0x10, 0x20}) {
		frame, err = d.DecodeByte(b)
		if err != nil {
			t.Fatalf("decode after resync failed: %v", err)
		}
	}
	if !bytes.Equal(frame, []byte{0x10, 0x20}) {
		t.Errorf("frame after resync = % X, want 10 20", frame)
	}
}

func TestDecoder_IgnoresLineNoise(t *testing.T) {
	d := NewDecoder()

	// Bytes before the opening END are discarded, as are empty frames
	stream := []byte{0xFF, 0x00, SlipEnd, SlipEnd, SlipEnd, 0x07, SlipEnd}
	var frame []byte
	for _, b := range stream {
		f, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f != nil {
			frame = f
		}
	}
	if !bytes.Equal(frame, []byte{0x07}) {
		t.Errorf("frame = % X, want 07", frame)
	}
}
