// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"errors"
	"fmt"
)

// ConnErrorKind enumerates connection-level failure classes
type ConnErrorKind int

const (
	// ConnSerial is any serial substrate failure not covered by a more
	// specific class; the underlying cause is preserved for display
	ConnSerial ConnErrorKind = iota
	// ConnFailed means the device never answered the sync handshake
	ConnFailed
	// ConnDeviceNotFound means the serial port does not exist
	ConnDeviceNotFound
	// ConnTimeout means a command got no response within its deadline
	ConnTimeout
	// ConnFraming means a received packet violated SLIP framing
	ConnFraming
	// ConnOversized means a received packet exceeded the frame buffer
	ConnOversized
)

// ConnError is a classified connection-level failure. For ConnTimeout the
// Cmd field names the in-flight command once one is known; it is empty
// only during low-level exchanges before a command context exists.
type ConnError struct {
	Kind  ConnErrorKind
	Cmd   string
	Cause error
}

// Error implements the error interface
func (e *ConnError) Error() string {
	switch e.Kind {
	case ConnSerial:
		return fmt.Sprintf("IO error while using serial port: %v", e.Cause)
	case ConnFailed:
		return "failed to connect to the device"
	case ConnDeviceNotFound:
		return "serial port not found"
	case ConnTimeout:
		if e.Cmd != "" {
			return fmt.Sprintf("timeout while running %s command", e.Cmd)
		}
		return "timeout while running command"
	case ConnFraming:
		return "received packet has invalid SLIP framing"
	case ConnOversized:
		return "received packet too large for buffer"
	default:
		return "connection error"
	}
}

// Unwrap exposes the underlying cause, if any
func (e *ConnError) Unwrap() error {
	return e.Cause
}

// Hint returns a remediation hint for display, or ""
func (e *ConnError) Hint() string {
	switch e.Kind {
	case ConnFailed:
		return "ensure that the device is connected and the reset and boot pins are not being held down"
	case ConnDeviceNotFound:
		return "ensure that the device is connected and your host recognizes the serial adapter"
	case ConnFraming, ConnOversized:
		return "try hard-resetting the device and try again; if the error persists your rom might be corrupted"
	default:
		return ""
	}
}

// Stage marks the session phase a connection failure occurred in
type Stage int

const (
	StageConnecting Stage = iota
	StageFlashing
)

// String returns the stage name
func (s Stage) String() string {
	if s == StageFlashing {
		return "flashing"
	}
	return "connecting"
}

// StageError wraps a ConnError with the session phase it occurred in.
// The phase is assigned once, at the boundary where the caller knows
// which phase it is in; the inner error is never re-tagged.
type StageError struct {
	Stage Stage
	Conn  *ConnError
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.Stage == StageFlashing {
		return fmt.Sprintf("communication error while flashing device: %v", e.Conn)
	}
	return fmt.Sprintf("error while connecting to device: %v", e.Conn)
}

// Unwrap exposes the wrapped connection error
func (e *StageError) Unwrap() error {
	return e.Conn
}

// Hint returns a remediation hint for display, or ""
func (e *StageError) Hint() string {
	return e.Conn.Hint()
}

// stageWrap tags a bare connection error with the connecting stage.
// Already-tagged and unrelated errors pass through unchanged.
func stageWrap(err error) error {
	if ce, ok := err.(*ConnError); ok {
		return &StageError{Stage: StageConnecting, Conn: ce}
	}
	return err
}

// MarkFlashing rewraps a connection-stage failure under the flashing
// stage. Flashing-tagged and non-connection errors pass through
// unchanged, so the transform is idempotent.
func MarkFlashing(err error) error {
	switch e := err.(type) {
	case *StageError:
		if e.Stage == StageConnecting {
			return &StageError{Stage: StageFlashing, Conn: e.Conn}
		}
		return e
	case *ConnError:
		return &StageError{Stage: StageFlashing, Conn: e}
	default:
		return err
	}
}

// ForCommand attaches the in-flight command to a timeout failure under
// either stage tag. All other errors pass through unchanged.
func ForCommand(err error, cmd *Command) error {
	switch e := err.(type) {
	case *StageError:
		if e.Conn.Kind == ConnTimeout {
			return &StageError{
				Stage: e.Stage,
				Conn:  &ConnError{Kind: ConnTimeout, Cmd: cmd.Name(), Cause: e.Conn.Cause},
			}
		}
		return e
	case *ConnError:
		if e.Kind == ConnTimeout {
			return &ConnError{Kind: ConnTimeout, Cmd: cmd.Name(), Cause: e.Cause}
		}
		return e
	default:
		return err
	}
}

// ChipDetectError reports an unrecognized chip magic value. The raw
// value is preserved so the caller can report exactly what was seen.
type ChipDetectError struct {
	Magic uint32
}

// Error implements the error interface
func (e *ChipDetectError) Error() string {
	return fmt.Sprintf("unrecognized chip magic value %#x", e.Magic)
}

// Hint returns a remediation hint for display
func (e *ChipDetectError) Hint() string {
	return "supported chips are ESP8266, ESP32, ESP32-S2 and ESP32-C3; if your chip is supported, try hard-resetting the device and try again"
}

// FlashDetectError reports an unrecognized flash geometry id
type FlashDetectError struct {
	ID byte
}

// Error implements the error interface
func (e *FlashDetectError) Error() string {
	return fmt.Sprintf("unrecognized flash id %#x", e.ID)
}

// Hint returns a remediation hint for display
func (e *FlashDetectError) Hint() string {
	return "flash sizes from 256KB to 32MB are supported"
}

// ImageError reports a structurally invalid firmware image
type ImageError string

// Error implements the error interface
func (e ImageError) Error() string {
	return string(e)
}

// Session-level failures with no further structure
var (
	// ErrFlashConnect means the SPI flash behind the chip did not attach
	ErrFlashConnect = errors.New("failed to connect to on-device flash")

	// ErrNotRamLoadable means the image maps segments to rom addresses
	// and cannot be executed from ram
	ErrNotRamLoadable = errors.New("image can not be run from ram as it includes segments mapped to rom addresses")

	// ErrUnsupportedDirectBoot means the detected chip cannot direct-boot
	ErrUnsupportedDirectBoot = errors.New("chip does not support direct boot")
)

// Hinter is implemented by errors that carry a remediation hint
type Hinter interface {
	Hint() string
}

// HintFor extracts a remediation hint from anywhere in an error chain,
// or returns ""
func HintFor(err error) string {
	for err != nil {
		if h, ok := err.(Hinter); ok {
			if hint := h.Hint(); hint != "" {
				return hint
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}
