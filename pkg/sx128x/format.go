// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// hexValue formats v as lowercase hex without padding (0x0, 0x1f, 0xffff)
func hexValue[T ~uint8 | ~uint16 | ~uint32](v T) string {
	return fmt.Sprintf("%#x", uint32(v))
}

// hexList formats each byte with hexValue, separated by single spaces
func hexList(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = hexValue(b)
	}
	return strings.Join(parts, " ")
}

// hexDump formats bytes as two-digit lowercase hex separated by spaces ("86 00 01")
func hexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// formatFloat prints f as Python's str(float) does: the shortest
// round-trip digits with at least one fractional digit (-5.0, 63.75), or
// exponent notation below 1e-4 and from 1e16 (1.98e-07)
func formatFloat(f float64) string {
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// roundDecimals rounds f to the nearest value with the given number of
// decimals, using the correctly rounded decimal expansion
func roundDecimals(f float64, decimals int) float64 {
	r, _ := strconv.ParseFloat(strconv.FormatFloat(f, 'f', decimals, 64), 64)
	return r
}

// formatRSSI converts a raw RSSI byte (-value/2 dBm)
func formatRSSI(raw byte) string {
	return formatFloat(float64(-int(raw)) / 2)
}

// be16 reads a big-endian 16-bit value
func be16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

// FormatTime formats a capture timestamp as seconds with nanosecond precision
func FormatTime(t time.Duration) string {
	return strconv.FormatFloat(t.Seconds(), 'f', 9, 64)
}

// FormatResult formats a result record into a human-readable line
func FormatResult(r *Result) string {
	span := fmt.Sprintf("[%s-%s]", FormatTime(r.Start), FormatTime(r.End))
	if r.Kind == ResultError {
		return fmt.Sprintf("%s ERROR: %s", span, r.Text)
	}
	return fmt.Sprintf("%s %s", span, r.Text)
}
