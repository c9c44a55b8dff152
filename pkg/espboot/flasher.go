// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"context"
	"fmt"
)

// SPI controller register bits used for the flash id read
const (
	spiUsrCommand  = 1 << 31
	spiUsrMiso     = 1 << 28
	spiCmdUsr      = 1 << 18
	spiCmdRdid     = 0x9F
	spiPollRetries = 10
)

// spiRegs describes the SPI controller layout a detected chip implies
type spiRegs struct {
	base     uint32
	usr      uint32
	usr1     uint32
	usr2     uint32
	mosiDlen uint32
	misoDlen uint32
	w0       uint32
	hasDlen  bool
}

func (c Chip) spiRegs() spiRegs {
	switch c {
	case ChipESP8266:
		return spiRegs{base: 0x60000200, usr: 0x1C, usr1: 0x20, usr2: 0x24, w0: 0x40}
	case ChipESP32:
		return spiRegs{base: 0x3FF42000, usr: 0x1C, usr1: 0x20, usr2: 0x24,
			mosiDlen: 0x28, misoDlen: 0x2C, w0: 0x80, hasDlen: true}
	case ChipESP32S2:
		return spiRegs{base: 0x3F402000, usr: 0x1C, usr1: 0x20, usr2: 0x24,
			mosiDlen: 0x28, misoDlen: 0x2C, w0: 0x58, hasDlen: true}
	default: // ESP32-C3
		return spiRegs{base: 0x60002000, usr: 0x1C, usr1: 0x20, usr2: 0x24,
			mosiDlen: 0x28, misoDlen: 0x2C, w0: 0x58, hasDlen: true}
	}
}

// ramRange returns the writable ram window for direct loading
func (c Chip) ramRange() (uint32, uint32) {
	switch c {
	case ChipESP8266:
		return 0x3FFE8000, 0x40000000
	case ChipESP32:
		return 0x3FFAE000, 0x40000000
	case ChipESP32S2:
		return 0x3FFB0000, 0x40000000
	default: // ESP32-C3
		return 0x3FC80000, 0x3FCE0000
	}
}

// SupportsDirectBoot reports whether the chip can boot a flat image
// from the start of flash without a second-stage bootloader.
func (c Chip) SupportsDirectBoot() bool {
	return c == ChipESP32C3
}

// Flasher runs a flashing session over a connected bootloader: sync
// handshake, chip and flash detection, then sequenced image transfer.
// Detection happens in the connecting phase; everything after
// FLASH_BEGIN is tagged as the flashing phase.
type Flasher struct {
	conn      *Connection
	chip      Chip
	flashSize FlashSize
	detected  bool
	attached  bool
	progress  func(written, total int)
}

// NewFlasher creates a flasher over the given connection
func NewFlasher(conn *Connection) *Flasher {
	return &Flasher{conn: conn}
}

// SetProgress installs a transfer progress callback; nil disables it
func (f *Flasher) SetProgress(fn func(written, total int)) {
	f.progress = fn
}

// Connect performs the sync handshake and identifies the chip
func (f *Flasher) Connect(ctx context.Context) error {
	if err := f.conn.Sync(ctx); err != nil {
		return err
	}

	magic, err := f.conn.ReadReg(ctx, ChipMagicRegAddr)
	if err != nil {
		return err
	}
	chip, err := DetectChip(magic)
	if err != nil {
		return err
	}
	f.chip = chip
	f.detected = true
	return nil
}

// Chip returns the detected chip variant; valid after Connect
func (f *Flasher) Chip() Chip {
	return f.chip
}

// DetectFlash attaches the SPI flash and reads its geometry id
func (f *Flasher) DetectFlash(ctx context.Context) (FlashSize, error) {
	if err := f.attachFlash(ctx); err != nil {
		return 0, err
	}

	id, err := f.spiFlashID(ctx)
	if err != nil {
		return 0, err
	}

	size, err := DetectFlashSize(id)
	if err != nil {
		return 0, err
	}
	f.flashSize = size
	return size, nil
}

// attachFlash issues SPI_ATTACH once per session
func (f *Flasher) attachFlash(ctx context.Context) error {
	if f.attached {
		return nil
	}
	cmd := SpiAttachCommand()
	if _, err := f.conn.Execute(ctx, cmd); err != nil {
		if _, ok := err.(RomError); ok {
			return ErrFlashConnect
		}
		return ForCommand(err, cmd)
	}
	f.attached = true
	return nil
}

// spiFlashID runs a RDID transaction through the chip's SPI controller
// and returns the capacity byte of the JEDEC id.
func (f *Flasher) spiFlashID(ctx context.Context) (byte, error) {
	regs := f.chip.spiRegs()

	if err := f.conn.WriteReg(ctx, regs.base+regs.usr, spiUsrCommand|spiUsrMiso, 0xFFFFFFFF); err != nil {
		return 0, err
	}
	if regs.hasDlen {
		if err := f.conn.WriteReg(ctx, regs.base+regs.misoDlen, 24-1, 0xFFFFFFFF); err != nil {
			return 0, err
		}
		if err := f.conn.WriteReg(ctx, regs.base+regs.mosiDlen, 0, 0xFFFFFFFF); err != nil {
			return 0, err
		}
	} else {
		// Older controllers pack the bit lengths into USR1
		if err := f.conn.WriteReg(ctx, regs.base+regs.usr1, 23<<8, 0xFFFFFFFF); err != nil {
			return 0, err
		}
	}
	if err := f.conn.WriteReg(ctx, regs.base+regs.usr2, 7<<28|spiCmdRdid, 0xFFFFFFFF); err != nil {
		return 0, err
	}
	if err := f.conn.WriteReg(ctx, regs.base+regs.w0, 0, 0xFFFFFFFF); err != nil {
		return 0, err
	}
	if err := f.conn.WriteReg(ctx, regs.base, spiCmdUsr, 0xFFFFFFFF); err != nil {
		return 0, err
	}

	for i := 0; i < spiPollRetries; i++ {
		cmd, err := f.conn.ReadReg(ctx, regs.base)
		if err != nil {
			return 0, err
		}
		if cmd&spiCmdUsr == 0 {
			id, err := f.conn.ReadReg(ctx, regs.base+regs.w0)
			if err != nil {
				return 0, err
			}
			// JEDEC id is manufacturer, type, capacity
			return byte(id >> 16), nil
		}
	}
	return 0, ErrFlashConnect
}

// Flash writes a flat firmware image at the given flash offset. Every
// connection failure after FLASH_BEGIN comes back tagged with the
// flashing stage and, for timeouts, the stalled command.
func (f *Flasher) Flash(ctx context.Context, image []byte, offset uint32, reboot bool) error {
	if len(image) == 0 {
		return ImageError("firmware image is empty")
	}
	if offset%FlashSectorSize != 0 {
		return ImageError(fmt.Sprintf("flash offset %#x is not aligned to the %#x sector size", offset, FlashSectorSize))
	}
	if f.detected && f.flashSize != 0 {
		// Compare in 64 bits; offsets near the top of the address space
		// would wrap a 32-bit sum and skip the check
		if uint64(offset)+uint64(len(image)) > uint64(f.flashSize.Bytes()) {
			return ImageError(fmt.Sprintf("image of %d bytes at %#x does not fit in %s flash", len(image), offset, f.flashSize))
		}
	}

	if f.flashSize != 0 {
		params := SpiSetParamsCommand(f.flashSize.Bytes())
		if _, err := f.conn.Execute(ctx, params); err != nil {
			return ForCommand(MarkFlashing(err), params)
		}
	}

	blocks := (len(image) + FlashBlockSize - 1) / FlashBlockSize
	eraseSize := (len(image) + FlashSectorSize - 1) / FlashSectorSize * FlashSectorSize

	begin := FlashBeginCommand(uint32(eraseSize), uint32(blocks), FlashBlockSize, offset)
	if _, err := f.conn.Execute(ctx, begin); err != nil {
		return ForCommand(MarkFlashing(err), begin)
	}

	for seq := 0; seq < blocks; seq++ {
		start := seq * FlashBlockSize
		end := start + FlashBlockSize
		if end > len(image) {
			end = len(image)
		}
		block := image[start:end]
		if len(block) < FlashBlockSize {
			// The ROM expects full blocks; pad the tail with erased bytes
			padded := make([]byte, FlashBlockSize)
			copy(padded, block)
			for i := len(block); i < FlashBlockSize; i++ {
				padded[i] = 0xFF
			}
			block = padded
		}

		cmd := FlashDataCommand(block, uint32(seq))
		if _, err := f.conn.Execute(ctx, cmd); err != nil {
			return ForCommand(MarkFlashing(err), cmd)
		}
		if f.progress != nil {
			f.progress(end, len(image))
		}
	}

	fin := FlashEndCommand(reboot)
	if _, err := f.conn.Execute(ctx, fin); err != nil {
		return ForCommand(MarkFlashing(err), fin)
	}
	return nil
}

// CheckDirectBoot verifies the detected chip can boot a flat image
// directly from flash.
func (f *Flasher) CheckDirectBoot() error {
	if !f.chip.SupportsDirectBoot() {
		return ErrUnsupportedDirectBoot
	}
	return nil
}

// LoadRam loads a flat image into device ram and jumps to the entry
// point. The image must fit entirely inside the chip's ram window;
// segments mapped at rom addresses cannot be executed this way.
func (f *Flasher) LoadRam(ctx context.Context, image []byte, addr, entry uint32) error {
	if len(image) == 0 {
		return ImageError("ram image is empty")
	}
	lo, hi := f.chip.ramRange()
	if addr < lo || addr+uint32(len(image)) > hi {
		return ErrNotRamLoadable
	}

	blocks := (len(image) + FlashBlockSize - 1) / FlashBlockSize
	begin := MemBeginCommand(uint32(len(image)), uint32(blocks), FlashBlockSize, addr)
	if _, err := f.conn.Execute(ctx, begin); err != nil {
		return ForCommand(MarkFlashing(err), begin)
	}

	for seq := 0; seq < blocks; seq++ {
		start := seq * FlashBlockSize
		end := start + FlashBlockSize
		if end > len(image) {
			end = len(image)
		}
		cmd := MemDataCommand(image[start:end], uint32(seq))
		if _, err := f.conn.Execute(ctx, cmd); err != nil {
			return ForCommand(MarkFlashing(err), cmd)
		}
		if f.progress != nil {
			f.progress(end, len(image))
		}
	}

	fin := MemEndCommand(entry)
	if _, err := f.conn.Execute(ctx, fin); err != nil {
		return ForCommand(MarkFlashing(err), fin)
	}
	return nil
}
