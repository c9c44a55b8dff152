// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import "errors"

// Codec-level failures. The classifier maps these onto the connection
// error vocabulary before they reach a caller.
var (
	// ErrFraming indicates a violated SLIP escape sequence. The current
	// frame is unrecoverable and the decoder resynchronizes on the next
	// END byte.
	ErrFraming = errors.New("invalid SLIP framing")

	// ErrOversized indicates the frame exceeded MaxFrameSize before its
	// terminating END byte arrived.
	ErrOversized = errors.New("oversized SLIP frame")
)

// EncodeFrame wraps a payload in SLIP framing, escaping END and ESC bytes.
// Encoding never fails; payload size is bounded by the callers building
// command packets.
func EncodeFrame(payload []byte) []byte {
	// Pre-allocate with extra space for potential escapes
	frame := make([]byte, 0, len(payload)+len(payload)/2+2)
	frame = append(frame, SlipEnd)
	for _, b := range payload {
		switch b {
		case SlipEnd:
			frame = append(frame, SlipEsc, SlipEscEnd)
		case SlipEsc:
			frame = append(frame, SlipEsc, SlipEscEsc)
		default:
			frame = append(frame, b)
		}
	}
	frame = append(frame, SlipEnd)
	return frame
}

// Decoder implements the SLIP frame decoder state machine. It has no
// knowledge of command semantics; retry policy lives in the Connection.
type Decoder struct {
	state  int
	buffer []byte
}

// NewDecoder creates a new SLIP decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle, discarding any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame payload, or nil if more bytes are needed.
// Returns ErrFraming on a broken escape sequence and ErrOversized when
// the frame grows past MaxFrameSize; both reset the decoder and require
// the caller to resynchronize.
func (d *Decoder) DecodeByte(b byte) ([]byte, error) {
	switch d.state {
	case stateIdle:
		// Waiting for an opening END byte; discard line noise
		if b == SlipEnd {
			d.state = stateFrame
		}
		return nil, nil

	case stateFrame:
		if b == SlipEnd {
			if len(d.buffer) == 0 {
				// Back-to-back END bytes delimit an empty frame; stay
				// synchronized and keep waiting
				return nil, nil
			}
			frame := make([]byte, len(d.buffer))
			copy(frame, d.buffer)
			d.Reset()
			return frame, nil
		}
		if b == SlipEsc {
			d.state = stateEscape
			return nil, nil
		}
		return nil, d.push(b)

	case stateEscape:
		d.state = stateFrame
		switch b {
		case SlipEscEnd:
			return nil, d.push(SlipEnd)
		case SlipEscEsc:
			return nil, d.push(SlipEsc)
		default:
			d.Reset()
			return nil, ErrFraming
		}

	default:
		d.Reset()
		return nil, ErrFraming
	}
}

// push appends a decoded byte, enforcing the size bound before any
// interpretation of the payload happens.
func (d *Decoder) push(b byte) error {
	if len(d.buffer) >= MaxFrameSize {
		d.Reset()
		return ErrOversized
	}
	d.buffer = append(d.buffer, b)
	return nil
}

// Decode runs a complete byte sequence through a fresh decoder and
// returns the first frame found. Intended for tests and trace replay;
// live connections feed DecodeByte from the read loop.
func Decode(stream []byte) ([]byte, error) {
	d := NewDecoder()
	for _, b := range stream {
		frame, err := d.DecodeByte(b)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return frame, nil
		}
	}
	return nil, ErrFraming
}
