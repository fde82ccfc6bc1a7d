// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture loads recorded SPI bus events for offline decoding.
//
// Supported inputs are the table export of the Saleae Logic 2 SPI analyzer
// (.csv), raw Saleae digital channel files (.bin, one per signal) and
// sxscope's own CBOR event logs (.cbor).
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// Format identifies a capture file format
type Format int

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatCBOR
	FormatDigital
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "Logic 2 CSV"
	case FormatCBOR:
		return "CBOR event log"
	case FormatDigital:
		return "Saleae digital"
	default:
		return "unknown"
	}
}

// DetectFormat guesses the format from the file extension
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".cbor", ".sxlog":
		return FormatCBOR
	case ".bin":
		return FormatDigital
	default:
		return FormatUnknown
	}
}

// Load reads a CSV export or CBOR event log. Digital captures need four
// files and are read with LoadDigital.
func Load(path string) ([]sx128x.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	var events []sx128x.Event
	switch format := DetectFormat(path); format {
	case FormatCSV:
		events, err = ReadCSV(f)
	case FormatCBOR:
		events, err = ReadCBOR(f)
	case FormatDigital:
		return nil, fmt.Errorf("%s: digital captures need --clk, --cs, --mosi and --miso channel files", path)
	default:
		return nil, fmt.Errorf("%s: unrecognized capture format (want .csv or .cbor)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// sortEvents orders events by start time, keeping the file order of
// simultaneous events (an enable and its first byte can share a timestamp)
func sortEvents(events []sx128x.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start < events[j].Start
	})
}
