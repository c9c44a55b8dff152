// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Thermoquad/amadou/pkg/espboot"
	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lineNumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Underline(true)
)

// renderError formats a failure for the operator: the cause, a
// remediation hint where one exists, and positional context for
// partition table diagnostics.
func renderError(err error) string {
	var b strings.Builder

	b.WriteString(errorStyle.Render("Error: " + err.Error()))
	b.WriteString("\n")

	var pe *espboot.PartitionTableError
	if errors.As(err, &pe) {
		b.WriteString(renderPartitionDiagnostic(pe))
	}

	if hint := espboot.HintFor(err); hint != "" {
		b.WriteString(hintStyle.Render("Hint: " + hint))
		b.WriteString("\n")
	}

	return b.String()
}

// renderPartitionDiagnostic shows the offending table line in context,
// with the reported span highlighted.
func renderPartitionDiagnostic(pe *espboot.PartitionTableError) string {
	lines := strings.Split(pe.Source, "\n")
	first := pe.Line - 2
	if first < 1 {
		first = 1
	}
	last := pe.Line + 1
	if last > len(lines) {
		last = len(lines)
	}

	var b strings.Builder
	b.WriteString("\n")
	for n := first; n <= last; n++ {
		text := lines[n-1]
		if n == pe.Line {
			text = highlightStyle.Render(text)
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", lineNumStyle.Render(fmt.Sprintf("%4d |", n)), text))
		if n == pe.Line {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				lineNumStyle.Render("     |"),
				hintStyle.Render(strings.Repeat("^", maxInt(1, pe.Length))+" "+pe.Hint)))
		}
	}
	b.WriteString("\n")
	return b.String()
}

// renderField formats a labeled value for board info output
func renderField(label, value string) string {
	return fmt.Sprintf("%s %s", labelStyle.Render(label+":"), valueStyle.Render(value))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
