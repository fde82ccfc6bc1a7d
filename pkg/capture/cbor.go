// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/fxamacker/cbor/v2"
)

// ReadCBOR reads an event log: a CBOR sequence of event records, the same
// records the probe link carries
func ReadCBOR(r io.Reader) ([]sx128x.Event, error) {
	dec := cbor.NewDecoder(r)
	var events []sx128x.Event
	for {
		var rec probe.EventRecord
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(events), err)
		}
		events = append(events, rec.Event())
	}
	sortEvents(events)
	return events, nil
}

// LogWriter appends events to a CBOR event log
type LogWriter struct {
	enc   *cbor.Encoder
	count int
}

// NewLogWriter creates a log writer on w
func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{enc: cbor.NewEncoder(w)}
}

// Write appends one event
func (l *LogWriter) Write(ev sx128x.Event) error {
	if err := l.enc.Encode(probe.NewEventRecord(ev)); err != nil {
		return fmt.Errorf("failed to write event %d: %w", l.count, err)
	}
	l.count++
	return nil
}

// Count returns the number of events written
func (l *LogWriter) Count() int {
	return l.count
}

// WriteCBOR writes events as an event log
func WriteCBOR(w io.Writer, events []sx128x.Event) error {
	lw := NewLogWriter(w)
	for _, ev := range events {
		if err := lw.Write(ev); err != nil {
			return err
		}
	}
	return nil
}
