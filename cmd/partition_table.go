// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/amadou/pkg/espboot"
	"github.com/spf13/cobra"
)

var partitionTableCmd = &cobra.Command{
	Use:   "partition-table <file>",
	Short: "Validate a partition table CSV",
	Long: `Parse and structurally validate a partition table before flashing it.

On a malformed table the offending line is shown in context with the
exact byte span implicated. Validation stops at the first error. Runs
entirely offline; no device connection is needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runPartitionTable,
}

func init() {
	rootCmd.AddCommand(partitionTableCmd)
}

func runPartitionTable(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	records, err := espboot.ParsePartitionTable(string(source))
	if err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		return err
	}

	fmt.Printf("%s: %d partitions\n\n", args[0], len(records))
	for _, r := range records {
		line := fmt.Sprintf("%-16s %-8s %-10s %-10s %s", r.Name, r.Type, r.SubType, r.Offset, r.Size)
		if r.Flags != "" {
			line += " [" + r.Flags + "]"
		}
		fmt.Println("  " + line)
	}
	fmt.Println("\n" + valueStyle.Render("Partition table is valid"))
	return nil
}
