// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"errors"
	"io"
	"os"

	"go.bug.st/serial"
)

// ClassifyIOError maps a raw substrate failure onto the connection error
// vocabulary. The mapping is total: codec faults become framing errors,
// timeouts become ConnTimeout with the command unset, missing ports
// become ConnDeviceNotFound, and every unknown class falls through to
// ConnSerial with the cause preserved.
func ClassifyIOError(err error) *ConnError {
	if ce, ok := err.(*ConnError); ok {
		return ce
	}

	switch {
	case errors.Is(err, ErrFraming):
		return &ConnError{Kind: ConnFraming, Cause: err}
	case errors.Is(err, ErrOversized):
		return &ConnError{Kind: ConnOversized, Cause: err}
	case errors.Is(err, os.ErrDeadlineExceeded) || os.IsTimeout(err):
		return &ConnError{Kind: ConnTimeout, Cause: err}
	case errors.Is(err, os.ErrNotExist):
		return &ConnError{Kind: ConnDeviceNotFound, Cause: err}
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		// Stream ended mid-frame; same recovery as broken framing
		return &ConnError{Kind: ConnFraming, Cause: err}
	}

	var pe *serial.PortError
	if errors.As(err, &pe) {
		switch pe.Code() {
		case serial.PortNotFound:
			return &ConnError{Kind: ConnDeviceNotFound, Cause: err}
		default:
			return &ConnError{Kind: ConnSerial, Cause: err}
		}
	}

	return &ConnError{Kind: ConnSerial, Cause: err}
}
