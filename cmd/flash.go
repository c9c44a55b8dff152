// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	flashNoReboot   bool
	flashDirectBoot bool
	flashNoTUI      bool
)

var flashCmd = &cobra.Command{
	Use:   "flash <image> <offset>",
	Short: "Write a firmware image to device flash",
	Long: `Flash a flat firmware image at the given flash offset.

Connects to the ROM bootloader, detects the chip and flash geometry,
and transfers the image block by block. The offset accepts hex
notation (e.g. 0x10000) and must be sector aligned.

With --direct-boot the image is written to the start of flash and
booted without a second-stage bootloader; only chips that support
direct boot accept this.`,
	Args: cobra.ExactArgs(2),
	RunE: runFlash,
}

func init() {
	flashCmd.Flags().BoolVar(&flashNoReboot, "no-reboot", false, "Leave the bootloader running after flashing")
	flashCmd.Flags().BoolVar(&flashDirectBoot, "direct-boot", false, "Write a direct boot image at the start of flash")
	flashCmd.Flags().BoolVar(&flashNoTUI, "no-tui", false, "Plain progress output even on a terminal")
	rootCmd.AddCommand(flashCmd)
}

func runFlash(cmd *cobra.Command, args []string) error {
	image, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	offset64, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("invalid flash offset %q: %v", args[1], err)
	}
	offset := uint32(offset64)

	flasher, connInfo, cleanup, err := openSession()
	if err != nil {
		return err
	}
	defer cleanup()

	// Operator abort is delivered between command attempts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Amadou - Firmware Flasher\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	if err := flasher.Connect(ctx); err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		return err
	}
	fmt.Println(renderField("Chip", flasher.Chip().String()))

	size, err := flasher.DetectFlash(ctx)
	if err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		return err
	}
	fmt.Println(renderField("Flash", size.String()))

	if flashDirectBoot {
		if err := flasher.CheckDirectBoot(); err != nil {
			fmt.Fprint(os.Stderr, renderError(err))
			return err
		}
		offset = 0
	}

	fmt.Printf("\nWriting %d bytes at %#x\n", len(image), offset)

	flash := func() error {
		return flasher.Flash(ctx, image, offset, !flashNoReboot)
	}

	if !flashNoTUI && term.IsTerminal(int(os.Stdout.Fd())) {
		err = runFlashTUI(flasher, flash)
	} else {
		flasher.SetProgress(func(written, total int) {
			fmt.Printf("\r%d/%d bytes (%d%%)", written, total, written*100/total)
		})
		err = flash()
		fmt.Println()
	}

	if err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		return err
	}

	fmt.Println(valueStyle.Render("Flashing complete"))
	return nil
}
