// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var boardInfoCmd = &cobra.Command{
	Use:   "board-info",
	Short: "Identify the connected chip and its flash",
	Long: `Connect to the ROM bootloader and report the detected chip variant
and flash geometry without writing anything.

Supports both serial and WebSocket connections.`,
	RunE: runBoardInfo,
}

func init() {
	rootCmd.AddCommand(boardInfoCmd)
}

func runBoardInfo(cmd *cobra.Command, args []string) error {
	flasher, connInfo, cleanup, err := openSession()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Amadou - Board Info\n")
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
	fmt.Println(renderField("Direct boot", fmt.Sprintf("%v", flasher.Chip().SupportsDirectBoot())))

	return nil
}
