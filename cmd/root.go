// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Command engine flags
	cmdTimeout  time.Duration
	maxAttempts int
	backoffMode string

	// Exchange trace output
	tracePath string
)

var rootCmd = &cobra.Command{
	Use:   "amadou",
	Short: "ESP ROM bootloader flashing tool",
	Long: `Amadou - A CLI tool for flashing firmware onto the ESP-family
microcontrollers used in Thermoquad appliance controllers.

Talks to the chip's ROM serial bootloader directly: sync handshake, chip
and flash detection, and sequenced firmware transfer, plus offline
partition table validation.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the AMADOU_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Command engine flags
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", 3*time.Second, "Per-attempt command timeout")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "retries", 3, "Maximum attempts per command")
	rootCmd.PersistentFlags().StringVar(&backoffMode, "backoff", "none", "Retry backoff: none, fixed or exponential")

	rootCmd.PersistentFlags().StringVar(&tracePath, "trace", "", "Write a CBOR exchange trace to this file")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
