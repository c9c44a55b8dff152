// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"encoding/binary"
	"fmt"
)

// Command is an immutable request to the ROM bootloader: an opcode plus
// payload, built once per exchange. The name is used only for
// diagnostics, never for protocol matching.
type Command struct {
	op       byte
	data     []byte
	checksum uint32
}

// NewCommand creates a command with a zero checksum field. Only the data
// commands (FLASH_DATA, MEM_DATA) carry a real checksum.
func NewCommand(op byte, data []byte) *Command {
	return &Command{op: op, data: data}
}

// NewChecksumCommand creates a command whose checksum field holds the
// XOR checksum of the transferred block. The data commands checksum the
// block alone, not the sequencing header in front of it.
func NewChecksumCommand(op byte, data, block []byte) *Command {
	c := &Command{op: op, data: data}
	sum := byte(checksumInit)
	for _, b := range block {
		sum ^= b
	}
	c.checksum = uint32(sum)
	return c
}

// Op returns the command opcode
func (c *Command) Op() byte {
	return c.op
}

// Name returns the diagnostic name for the command's opcode
func (c *Command) Name() string {
	return opName(c.op)
}

// Encode serializes the command to its packet layout, before SLIP
// framing is applied.
func (c *Command) Encode() []byte {
	packet := make([]byte, 8+len(c.data))
	packet[0] = DirRequest
	packet[1] = c.op
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(c.data)))
	binary.LittleEndian.PutUint32(packet[4:8], c.checksum)
	copy(packet[8:], c.data)
	return packet
}

// opName maps an opcode to its diagnostic name
func opName(op byte) string {
	switch op {
	case OpFlashBegin:
		return "FLASH_BEGIN"
	case OpFlashData:
		return "FLASH_DATA"
	case OpFlashEnd:
		return "FLASH_END"
	case OpMemBegin:
		return "MEM_BEGIN"
	case OpMemEnd:
		return "MEM_END"
	case OpMemData:
		return "MEM_DATA"
	case OpSync:
		return "SYNC"
	case OpWriteReg:
		return "WRITE_REG"
	case OpReadReg:
		return "READ_REG"
	case OpSpiSetParams:
		return "SPI_SET_PARAMS"
	case OpSpiAttach:
		return "SPI_ATTACH"
	case OpChangeBaud:
		return "CHANGE_BAUD"
	default:
		return fmt.Sprintf("0x%02X", op)
	}
}

// Response is a decoded bootloader response packet
type Response struct {
	Op     byte
	Value  uint32
	Data   []byte
	Status byte
	Error  byte
}

// ParseResponse decodes a response packet from a de-framed payload.
// Structural failures wrap ErrFraming so the classifier treats them the
// same as broken framing: unrecoverable for this frame, retryable.
func ParseResponse(frame []byte) (*Response, error) {
	if len(frame) < 10 {
		return nil, fmt.Errorf("response too short (%d bytes): %w", len(frame), ErrFraming)
	}
	if frame[0] != DirResponse {
		return nil, fmt.Errorf("invalid direction byte 0x%02X: %w", frame[0], ErrFraming)
	}

	resp := &Response{Op: frame[1]}
	size := binary.LittleEndian.Uint16(frame[2:4])
	resp.Value = binary.LittleEndian.Uint32(frame[4:8])

	if int(size) > len(frame)-8 {
		return nil, fmt.Errorf("response size mismatch (header %d, have %d): %w", size, len(frame)-8, ErrFraming)
	}

	// The last two bytes of the data section are the status trailer
	if size >= 2 {
		resp.Data = frame[8 : 8+size-2]
		resp.Status = frame[8+size-2]
		resp.Error = frame[8+size-1]
	} else {
		resp.Data = frame[8 : 8+size]
	}

	return resp, nil
}

// RomError returns the decoded failure reason for a non-success
// response, or nil when the status trailer reports success.
func (r *Response) RomError() error {
	if r.Status == 0 {
		return nil
	}
	return DecodeRomError(r.Error)
}

// SyncCommand builds the sync handshake command
func SyncCommand() *Command {
	data := make([]byte, 36)
	data[0] = 0x07
	data[1] = 0x07
	data[2] = 0x12
	data[3] = 0x20
	for i := 4; i < len(data); i++ {
		data[i] = 0x55
	}
	return NewCommand(OpSync, data)
}

// ReadRegCommand builds a register read command
func ReadRegCommand(addr uint32) *Command {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, addr)
	return NewCommand(OpReadReg, data)
}

// WriteRegCommand builds a register write command
func WriteRegCommand(addr, value, mask, delayUs uint32) *Command {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], addr)
	binary.LittleEndian.PutUint32(data[4:8], value)
	binary.LittleEndian.PutUint32(data[8:12], mask)
	binary.LittleEndian.PutUint32(data[12:16], delayUs)
	return NewCommand(OpWriteReg, data)
}

// FlashBeginCommand builds the command that opens a flash write session
func FlashBeginCommand(eraseSize, blocks, blockSize, offset uint32) *Command {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], eraseSize)
	binary.LittleEndian.PutUint32(data[4:8], blocks)
	binary.LittleEndian.PutUint32(data[8:12], blockSize)
	binary.LittleEndian.PutUint32(data[12:16], offset)
	return NewCommand(OpFlashBegin, data)
}

// FlashDataCommand builds one sequenced flash data block
func FlashDataCommand(block []byte, seq uint32) *Command {
	data := make([]byte, 16+len(block))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(data[4:8], seq)
	copy(data[16:], block)
	return NewChecksumCommand(OpFlashData, data, block)
}

// FlashEndCommand builds the command that closes a flash write session.
// reboot=true asks the bootloader to restart into the new firmware.
func FlashEndCommand(reboot bool) *Command {
	data := make([]byte, 4)
	if !reboot {
		binary.LittleEndian.PutUint32(data, 1)
	}
	return NewCommand(OpFlashEnd, data)
}

// MemBeginCommand builds the command that opens a ram load session
func MemBeginCommand(size, blocks, blockSize, offset uint32) *Command {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], size)
	binary.LittleEndian.PutUint32(data[4:8], blocks)
	binary.LittleEndian.PutUint32(data[8:12], blockSize)
	binary.LittleEndian.PutUint32(data[12:16], offset)
	return NewCommand(OpMemBegin, data)
}

// MemDataCommand builds one sequenced ram data block
func MemDataCommand(block []byte, seq uint32) *Command {
	data := make([]byte, 16+len(block))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(data[4:8], seq)
	copy(data[16:], block)
	return NewChecksumCommand(OpMemData, data, block)
}

// MemEndCommand builds the command that ends a ram load session and
// jumps to the entry point.
func MemEndCommand(entry uint32) *Command {
	data := make([]byte, 8)
	if entry != 0 {
		binary.LittleEndian.PutUint32(data[4:8], entry)
	} else {
		binary.LittleEndian.PutUint32(data[0:4], 1)
	}
	return NewCommand(OpMemEnd, data)
}

// SpiAttachCommand builds the command that attaches the SPI flash
func SpiAttachCommand() *Command {
	return NewCommand(OpSpiAttach, make([]byte, 8))
}

// SpiSetParamsCommand builds the command that configures flash geometry
func SpiSetParamsCommand(totalSize uint32) *Command {
	data := make([]byte, 24)
	binary.LittleEndian.PutUint32(data[4:8], totalSize)
	binary.LittleEndian.PutUint32(data[8:12], 0x10000)
	binary.LittleEndian.PutUint32(data[12:16], FlashSectorSize)
	binary.LittleEndian.PutUint32(data[16:20], FlashPageSize)
	binary.LittleEndian.PutUint32(data[20:24], FlashStatusMask)
	return NewCommand(OpSpiSetParams, data)
}

// ChangeBaudCommand builds the command that switches the link baud rate
func ChangeBaudCommand(newRate, oldRate uint32) *Command {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], newRate)
	binary.LittleEndian.PutUint32(data[4:8], oldRate)
	return NewCommand(OpChangeBaud, data)
}
