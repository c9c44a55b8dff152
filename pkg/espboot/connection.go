// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"context"
	"time"
)

// Port is the serial substrate a Connection drives. go.bug.st/serial
// ports satisfy it directly; the WebSocket bridge adapts to it. A zero
// byte count from Read with a nil error means the read timed out.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// Backoff selects the delay policy between command attempts
type Backoff int

const (
	BackoffNone Backoff = iota
	BackoffFixed
	BackoffExponential
)

// RetryConfig tunes the command engine. Timeout is the wall-clock
// deadline per attempt, not cumulative across retries; MaxAttempts
// bounds total attempts.
type RetryConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     Backoff
	Interval    time.Duration
}

// DefaultRetryConfig returns the engine defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultAttempts,
		Backoff:     BackoffNone,
		Interval:    100 * time.Millisecond,
	}
}

// Connection owns a serial port exclusively for the duration of a
// flashing session and runs one command exchange at a time over it.
type Connection struct {
	port    Port
	decoder *Decoder
	cfg     RetryConfig
	tracer  *Tracer
	buf     []byte
	pending [][]byte
}

// NewConnection creates a connection over an exclusively owned port
func NewConnection(port Port, cfg RetryConfig) *Connection {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultAttempts
	}
	return &Connection{
		port:    port,
		decoder: NewDecoder(),
		cfg:     cfg,
		buf:     make([]byte, 256),
	}
}

// SetTracer installs an exchange tracer; nil disables tracing
func (c *Connection) SetTracer(t *Tracer) {
	c.tracer = t
}

// Close releases the underlying port
func (c *Connection) Close() error {
	return c.port.Close()
}

// Execute sends a command and waits for its matching response, retrying
// channel faults (timeouts, malformed or oversized frames) up to the
// configured budget. Device-status rejections are semantic, not channel
// faults: they surface immediately after a single attempt, since
// retrying a command the device explicitly rejected cannot succeed and
// would mask a real firmware problem. Connection failures come back
// tagged with the connecting stage; callers in the flashing phase
// compose MarkFlashing on top.
func (c *Connection) Execute(ctx context.Context, cmd *Command) (*Response, error) {
	var lastErr *ConnError

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		// Cancellation is checked between attempts, never mid-read; an
		// in-flight read relies on the port's own timeout to return.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			if err := c.waitBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		resp, err := c.attempt(ctx, cmd)
		if err == nil {
			return resp, nil
		}
		if re, ok := err.(RomError); ok {
			c.traceExchange(cmd, resp, err)
			return resp, re
		}

		ce := ClassifyIOError(err)
		switch ce.Kind {
		case ConnTimeout, ConnFraming, ConnOversized:
			lastErr = ce
			continue
		default:
			// Port-level failures are not transient; surface at once
			c.traceExchange(cmd, nil, ce)
			return nil, stageWrap(ce)
		}
	}

	c.traceExchange(cmd, nil, lastErr)
	return nil, ForCommand(stageWrap(lastErr), cmd)
}

// attempt runs one Sent -> AwaitingResponse pass for the command
func (c *Connection) attempt(ctx context.Context, cmd *Command) (*Response, error) {
	c.decoder.Reset()

	frame := EncodeFrame(cmd.Encode())
	if _, err := c.port.Write(frame); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	for {
		raw, err := c.readFrame(deadline)
		if err != nil {
			return nil, err
		}

		resp, err := ParseResponse(raw)
		if err != nil {
			return nil, err
		}
		if resp.Op != cmd.Op() {
			// Stale response from an earlier exchange; keep reading
			continue
		}
		if romErr := resp.RomError(); romErr != nil {
			return resp, romErr.(RomError)
		}
		c.traceExchange(cmd, resp, nil)
		return resp, nil
	}
}

// readFrame returns the next decoded frame, consuming frames queued by
// the sync drain before touching the port.
func (c *Connection) readFrame(deadline time.Time) ([]byte, error) {
	if len(c.pending) > 0 {
		raw := c.pending[0]
		c.pending = c.pending[1:]
		return raw, nil
	}

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, &ConnError{Kind: ConnTimeout}
		}
		if err := c.port.SetReadTimeout(remaining); err != nil {
			return nil, err
		}

		n, err := c.port.Read(c.buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// The serial substrate signals a read timeout with a zero
			// byte count and no error
			return nil, &ConnError{Kind: ConnTimeout}
		}

		var first []byte
		for i := 0; i < n; i++ {
			raw, err := c.decoder.DecodeByte(c.buf[i])
			if err != nil {
				return nil, err
			}
			if raw == nil {
				continue
			}
			if first == nil {
				first = raw
			} else {
				// A chunk can carry more than one frame; keep the rest
				c.pending = append(c.pending, raw)
			}
		}
		if first != nil {
			return first, nil
		}
	}
}

// waitBackoff sleeps between attempts per the configured policy,
// honoring cancellation.
func (c *Connection) waitBackoff(ctx context.Context, attempt int) error {
	var delay time.Duration
	switch c.cfg.Backoff {
	case BackoffFixed:
		delay = c.cfg.Interval
	case BackoffExponential:
		delay = c.cfg.Interval << (attempt - 1)
	default:
		return nil
	}
	if delay <= 0 {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// traceExchange records a completed exchange when tracing is enabled
func (c *Connection) traceExchange(cmd *Command, resp *Response, err error) {
	if c.tracer == nil {
		return
	}
	c.tracer.Record(cmd, resp, err)
}

// Sync runs the connect handshake: the SYNC command is sent with its
// own retry budget, and persistent silence becomes a connection-failed
// error rather than a plain timeout.
func (c *Connection) Sync(ctx context.Context) error {
	saved := c.cfg.MaxAttempts
	c.cfg.MaxAttempts = SyncAttempts
	_, err := c.Execute(ctx, SyncCommand())
	c.cfg.MaxAttempts = saved

	if err != nil {
		if se, ok := err.(*StageError); ok && se.Conn.Kind == ConnTimeout {
			return stageWrap(&ConnError{Kind: ConnFailed, Cause: se.Conn})
		}
		return err
	}

	// The ROM answers a single SYNC with a burst of identical
	// responses; drain them so the next exchange starts clean
	c.drain()
	return nil
}

// drain consumes the ROM's duplicate sync responses until a short quiet
// period. Only SYNC frames are discarded; anything else that arrives is
// queued for the next exchange.
func (c *Connection) drain() {
	if err := c.port.SetReadTimeout(50 * time.Millisecond); err != nil {
		return
	}
	for {
		n, err := c.port.Read(c.buf)
		if err != nil || n == 0 {
			return
		}
		for i := 0; i < n; i++ {
			raw, derr := c.decoder.DecodeByte(c.buf[i])
			if derr != nil {
				// Noise between bursts; the decoder resynchronizes on
				// the next END byte
				continue
			}
			if raw == nil {
				continue
			}
			if resp, perr := ParseResponse(raw); perr == nil && resp.Op == OpSync {
				continue
			}
			c.pending = append(c.pending, raw)
		}
	}
}

// ReadReg reads a device register
func (c *Connection) ReadReg(ctx context.Context, addr uint32) (uint32, error) {
	cmd := ReadRegCommand(addr)
	resp, err := c.Execute(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// WriteReg writes a device register
func (c *Connection) WriteReg(ctx context.Context, addr, value, mask uint32) error {
	cmd := WriteRegCommand(addr, value, mask, 0)
	_, err := c.Execute(ctx, cmd)
	return err
}
