// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/amadou/pkg/espboot"
	"github.com/spf13/cobra"
)

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test bootloader reachability with timed register reads",
	Long: `Sync with the ROM bootloader, then issue repeated READ_REG commands
and report round-trip times.

This is useful for verifying:
  - The device is in bootloader mode and responding
  - The serial or WebSocket path is stable
  - Retry/timeout settings are sane for the link

Exit codes:
  0 - All reads successful
  1 - One or more reads failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of register reads to send")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount < 1 {
		pingCount = 1
	}

	port, connInfo, err := OpenPort()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	conn := espboot.NewConnection(port, retryConfig())
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Amadou - Bootloader Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Count: %d reads\n\n", pingCount)

	if err := conn.Sync(ctx); err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		os.Exit(2)
	}
	fmt.Printf("Sync OK\n")

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Read %d/%d: ", i, pingCount)

		startTime := time.Now()
		magic, err := conn.ReadReg(ctx, espboot.ChipMagicRegAddr)
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			continue
		}
		rtt := time.Since(startTime)
		fmt.Printf("magic=%#08x, rtt=%v\n", magic, rtt.Round(time.Millisecond))
		successCount++

		// Small delay between reads
		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Read statistics ---\n")
	fmt.Printf("%d reads sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, lossPercent(failCount, pingCount))

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// lossPercent reports failed reads as a percentage of those sent
func lossPercent(failed, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	return float64(failed) / float64(sent) * 100
}
