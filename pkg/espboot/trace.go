// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package espboot

import (
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ExchangeRecord is one traced command/response exchange, written as a
// CBOR stream for offline analysis.
type ExchangeRecord struct {
	Time     time.Time `cbor:"1,keyasint"`
	Command  string    `cbor:"2,keyasint"`
	Op       byte      `cbor:"3,keyasint"`
	Request  []byte    `cbor:"4,keyasint"`
	Value    uint32    `cbor:"5,keyasint,omitempty"`
	Response []byte    `cbor:"6,keyasint,omitempty"`
	Status   byte      `cbor:"7,keyasint,omitempty"`
	RomCode  byte      `cbor:"8,keyasint,omitempty"`
	Error    string    `cbor:"9,keyasint,omitempty"`
}

// Tracer records command exchanges to a CBOR stream. Recording is best
// effort: a failed write disables the tracer rather than failing the
// exchange that triggered it.
type Tracer struct {
	enc    *cbor.Encoder
	broken bool
}

// NewTracer creates a tracer writing CBOR records to w
func NewTracer(w io.Writer) *Tracer {
	return &Tracer{enc: cbor.NewEncoder(w)}
}

// Record writes one exchange record
func (t *Tracer) Record(cmd *Command, resp *Response, err error) {
	if t.broken {
		return
	}

	rec := ExchangeRecord{
		Time:    time.Now(),
		Command: cmd.Name(),
		Op:      cmd.Op(),
		Request: cmd.Encode(),
	}
	if resp != nil {
		rec.Value = resp.Value
		rec.Response = resp.Data
		rec.Status = resp.Status
		rec.RomCode = resp.Error
	}
	if err != nil {
		rec.Error = err.Error()
	}

	if encErr := t.enc.Encode(rec); encErr != nil {
		t.broken = true
	}
}
