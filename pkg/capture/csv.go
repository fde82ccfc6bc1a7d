// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// csvColumns maps the Logic 2 export header to column indexes
type csvColumns struct {
	typ, start, duration, mosi, miso int
}

func parseCSVHeader(header []string) (csvColumns, error) {
	cols := csvColumns{typ: -1, start: -1, duration: -1, mosi: -1, miso: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "type":
			cols.typ = i
		case "start_time", "start time":
			cols.start = i
		case "duration":
			cols.duration = i
		case "mosi":
			cols.mosi = i
		case "miso":
			cols.miso = i
		}
	}
	if cols.typ < 0 || cols.start < 0 {
		return cols, fmt.Errorf("CSV header lacks type/start_time columns: %v", header)
	}
	return cols, nil
}

// ReadCSV parses a Logic 2 SPI analyzer table export:
//
//	name,type,start_time,duration,mosi,miso
//	"SPI","enable",0.0001,2e-08,,
//	"SPI","result",0.00011,1e-06,0x86,0x00
//
// Byte values may be hex (0x86) or decimal. Rows are returned ordered by
// start time.
func ReadCSV(r io.Reader) ([]sx128x.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := parseCSVHeader(header)
	if err != nil {
		return nil, err
	}

	var events []sx128x.Event
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ev, err := parseCSVRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, ev)
	}

	sortEvents(events)
	return events, nil
}

func parseCSVRow(row []string, cols csvColumns) (sx128x.Event, error) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	start, err := parseSeconds(field(cols.start))
	if err != nil {
		return sx128x.Event{}, fmt.Errorf("start_time: %w", err)
	}
	ev := sx128x.Event{
		Kind:  sx128x.EventKind(strings.ToLower(field(cols.typ))),
		Start: start,
		End:   start,
	}
	if d := field(cols.duration); d != "" {
		dur, err := parseSeconds(d)
		if err != nil {
			return sx128x.Event{}, fmt.Errorf("duration: %w", err)
		}
		ev.End = start + dur
	}

	if ev.Kind == sx128x.EventResult {
		if ev.MOSI, err = parseByteField(field(cols.mosi)); err != nil {
			return sx128x.Event{}, fmt.Errorf("mosi: %w", err)
		}
		if ev.MISO, err = parseByteField(field(cols.miso)); err != nil {
			return sx128x.Event{}, fmt.Errorf("miso: %w", err)
		}
	}
	return ev, nil
}

// parseSeconds converts a floating point seconds value to a duration,
// rounded to the nanosecond
func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}

// parseByteField reads space-separated byte values ("0x86", "134", "86 00")
func parseByteField(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	parts := strings.Fields(s)
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q", p)
		}
		out = append(out, byte(v))
	}
	return out, nil
}

// WriteCSV writes events in the Logic 2 export layout
func WriteCSV(w io.Writer, events []sx128x.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "type", "start_time", "duration", "mosi", "miso"}); err != nil {
		return err
	}
	for _, ev := range events {
		row := []string{
			"SPI",
			string(ev.Kind),
			strconv.FormatFloat(ev.Start.Seconds(), 'f', 9, 64),
			strconv.FormatFloat((ev.End - ev.Start).Seconds(), 'f', 9, 64),
			formatByteField(ev.MOSI),
			formatByteField(ev.MISO),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatByteField(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("0x%02X", v)
	}
	return strings.Join(parts, " ")
}
