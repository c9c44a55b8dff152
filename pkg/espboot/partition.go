// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// PartitionRecord is one row of a partition table. Validation here is
// structural; the field values are interpreted downstream.
type PartitionRecord struct {
	Name    string
	Type    string
	SubType string
	Offset  string
	Size    string
	Flags   string
}

// PartitionTableError is the diagnostic for a malformed partition
// table. It retains the full source text plus the byte span of the
// offending line so a renderer can show the problem in context.
// Immutable once created.
type PartitionTableError struct {
	Source string
	Line   int
	Offset int
	Length int
	Hint   string
	Err    error
}

// Error implements the error interface
func (e *PartitionTableError) Error() string {
	return fmt.Sprintf("malformed partition table: line %d: %s", e.Line, e.Hint)
}

// Unwrap exposes the underlying structural error
func (e *PartitionTableError) Unwrap() error {
	return e.Err
}

// Span returns the byte offsets [start, end) of the offending line
func (e *PartitionTableError) Span() (int, int) {
	return e.Offset, e.Offset + e.Length
}

// ParsePartitionTable parses comma-delimited partition table text, one
// record per line, '#' starting a comment line. The first record's
// field count is authoritative for all subsequent records. Parsing
// stops at the first structural error; this is a single-error
// validator.
func ParsePartitionTable(source string) ([]PartitionRecord, error) {
	r := csv.NewReader(strings.NewReader(source))
	r.Comment = '#'
	r.TrimLeadingSpace = true
	// Field counts are checked by hand so the diagnostic can name both
	// the offending and the expected count
	r.FieldsPerRecord = -1

	var records []PartitionRecord
	expected := 0

	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 1
			hint := err.Error()
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
				hint = pe.Err.Error()
			}
			return nil, newPartitionTableError(source, line, hint, err)
		}

		line, _ := r.FieldPos(0)
		if expected == 0 {
			expected = len(fields)
		} else if len(fields) != expected {
			hint := fmt.Sprintf("record has %d fields, but the previous record has %d fields",
				len(fields), expected)
			return nil, newPartitionTableError(source, line, hint, csv.ErrFieldCount)
		}

		records = append(records, recordFromFields(fields))
	}

	return records, nil
}

// recordFromFields maps a parsed row onto a PartitionRecord. Rows may
// omit trailing fields (flags are optional in practice).
func recordFromFields(fields []string) PartitionRecord {
	get := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	return PartitionRecord{
		Name:    get(0),
		Type:    get(1),
		SubType: get(2),
		Offset:  get(3),
		Size:    get(4),
		Flags:   get(5),
	}
}

// newPartitionTableError builds a diagnostic anchored at the given
// 1-based source line. The row parser reports no column information, so
// the span covers the entire line; this is a documented limitation of
// the diagnostic, not something to refine silently.
func newPartitionTableError(source string, line int, hint string, cause error) *PartitionTableError {
	offset := 0
	length := 0
	remaining := source
	for n := 1; ; n++ {
		idx := strings.IndexByte(remaining, '\n')
		if n == line {
			if idx < 0 {
				length = len(remaining)
			} else {
				length = idx
			}
			break
		}
		if idx < 0 {
			// Reported line is past the end; anchor at the last line
			length = len(remaining)
			break
		}
		offset += idx + 1
		remaining = remaining[idx+1:]
	}

	return &PartitionTableError{
		Source: source,
		Line:   line,
		Offset: offset,
		Length: length,
		Hint:   hint,
		Err:    cause,
	}
}
