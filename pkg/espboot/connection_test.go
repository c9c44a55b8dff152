// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// fakePort scripts the serial substrate: each Read returns the next
// chunk, and an exhausted script behaves like a read timeout (zero
// bytes, nil error).
type fakePort struct {
	chunks [][]byte
	next   int
	writes [][]byte
	closed bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	if p.next >= len(p.chunks) {
		return 0, nil
	}
	chunk := p.chunks[p.next]
	p.next++
	if len(chunk) == 0 {
		return 0, nil
	}
	return copy(buf, chunk), nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.writes = append(p.writes, cp)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	return nil
}

// responseFrame builds a SLIP-framed bootloader response
func responseFrame(op byte, value uint32, data []byte, status, errCode byte) []byte {
	size := len(data) + 2
	raw := make([]byte, 8+size)
	raw[0] = DirResponse
	raw[1] = op
	binary.LittleEndian.PutUint16(raw[2:4], uint16(size))
	binary.LittleEndian.PutUint32(raw[4:8], value)
	copy(raw[8:], data)
	raw[8+len(data)] = status
	raw[9+len(data)] = errCode
	return EncodeFrame(raw)
}

func testConfig() RetryConfig {
	return RetryConfig{Timeout: 50 * time.Millisecond, MaxAttempts: 3}
}

func TestExecute_Success(t *testing.T) {
	port := &fakePort{chunks: [][]byte{responseFrame(OpReadReg, 0x00F01D83, nil, 0, 0)}}
	conn := NewConnection(port, testConfig())

	resp, err := conn.Execute(context.Background(), ReadRegCommand(ChipMagicRegAddr))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Value != 0x00F01D83 {
		t.Errorf("value = %#x, want 0xf01d83", resp.Value)
	}
	if len(port.writes) != 1 {
		t.Errorf("wrote %d frames, want 1", len(port.writes))
	}
}

func TestExecute_ExhaustsRetryBudgetOnTimeout(t *testing.T) {
	port := &fakePort{} // never answers
	conn := NewConnection(port, testConfig())

	cmd := FlashBeginCommand(0, 0, FlashBlockSize, 0)
	_, err := conn.Execute(context.Background(), cmd)
	if err == nil {
		t.Fatal("Execute succeeded with a silent device")
	}

	// Exactly three attempts were made
	if len(port.writes) != 3 {
		t.Errorf("wrote %d frames, want 3", len(port.writes))
	}

	// The surfaced error is a timeout naming the originating command,
	// not a generic connection error
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if se.Conn.Kind != ConnTimeout {
		t.Errorf("kind = %v, want ConnTimeout", se.Conn.Kind)
	}
	if se.Conn.Cmd != "FLASH_BEGIN" {
		t.Errorf("command annotation = %q, want FLASH_BEGIN", se.Conn.Cmd)
	}
}

func TestExecute_RomErrorEndsAttemptLoop(t *testing.T) {
	// Status 0x07 (invalid crc) must surface immediately even though
	// attempts remain in the budget: a semantic rejection is not a
	// channel fault
	port := &fakePort{chunks: [][]byte{
		responseFrame(OpFlashData, 0, nil, 1, 0x07),
		responseFrame(OpFlashData, 0, nil, 0, 0),
	}}
	conn := NewConnection(port, testConfig())

	_, err := conn.Execute(context.Background(), FlashDataCommand(make([]byte, 4), 0))
	if !errors.Is(err, RomInvalidCrc) {
		t.Fatalf("error = %v, want RomInvalidCrc", err)
	}
	if len(port.writes) != 1 {
		t.Errorf("wrote %d frames, want 1 (no retry after device rejection)", len(port.writes))
	}
}

func TestExecute_RetriesAfterFramingFault(t *testing.T) {
	broken := []byte{SlipEnd, 0x01, SlipEsc, 0x42, SlipEnd}
	port := &fakePort{chunks: [][]byte{
		broken,
		responseFrame(OpSync, 0, nil, 0, 0),
	}}
	conn := NewConnection(port, testConfig())

	_, err := conn.Execute(context.Background(), SyncCommand())
	if err != nil {
		t.Fatalf("Execute failed after recoverable framing fault: %v", err)
	}
	if len(port.writes) != 2 {
		t.Errorf("wrote %d frames, want 2 (one retry)", len(port.writes))
	}
}

func TestExecute_SkipsStaleResponses(t *testing.T) {
	// A leftover response for a different opcode is ignored, not
	// treated as a match
	stale := responseFrame(OpSync, 0, nil, 0, 0)
	match := responseFrame(OpReadReg, 42, nil, 0, 0)
	port := &fakePort{chunks: [][]byte{append(stale, match...)}}
	conn := NewConnection(port, testConfig())

	resp, err := conn.Execute(context.Background(), ReadRegCommand(0x1000))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if resp.Value != 42 {
		t.Errorf("value = %d, want 42", resp.Value)
	}
}

func TestExecute_CancelledBetweenAttempts(t *testing.T) {
	port := &fakePort{}
	conn := NewConnection(port, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.Execute(ctx, SyncCommand())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(port.writes) != 0 {
		t.Errorf("wrote %d frames after cancellation, want 0", len(port.writes))
	}
}

func TestSync_SilenceBecomesConnectionFailed(t *testing.T) {
	port := &fakePort{}
	conn := NewConnection(port, testConfig())

	err := conn.Sync(context.Background())
	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *StageError", err)
	}
	if se.Conn.Kind != ConnFailed {
		t.Errorf("kind = %v, want ConnFailed", se.Conn.Kind)
	}
	if se.Stage != StageConnecting {
		t.Errorf("stage = %v, want connecting", se.Stage)
	}
	if len(port.writes) != SyncAttempts {
		t.Errorf("wrote %d sync frames, want %d", len(port.writes), SyncAttempts)
	}
}

func TestSync_DrainKeepsNonSyncFrames(t *testing.T) {
	// The ROM answers one SYNC with a burst of duplicates; a frame for
	// a different opcode arriving behind the burst must survive the
	// post-sync drain and satisfy the next exchange
	burst := append(responseFrame(OpSync, 0, nil, 0, 0), responseFrame(OpSync, 0, nil, 0, 0)...)
	port := &fakePort{chunks: [][]byte{
		responseFrame(OpSync, 0, nil, 0, 0),
		burst,
		responseFrame(OpReadReg, 42, nil, 0, 0),
	}}
	conn := NewConnection(port, testConfig())

	if err := conn.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	value, err := conn.ReadReg(context.Background(), 0x1000)
	if err != nil {
		t.Fatalf("ReadReg after sync failed: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %d, want 42", value)
	}
}

func TestSync_Success(t *testing.T) {
	port := &fakePort{chunks: [][]byte{responseFrame(OpSync, 0, nil, 0, 0)}}
	conn := NewConnection(port, testConfig())

	if err := conn.Sync(context.Background()); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func TestExecute_BackoffHonorsCancellation(t *testing.T) {
	port := &fakePort{}
	cfg := testConfig()
	cfg.Backoff = BackoffFixed
	cfg.Interval = time.Hour
	conn := NewConnection(port, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := conn.Execute(ctx, SyncCommand())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff wait ignored cancellation")
	}
}
