// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

const logic2Export = `name,type,start_time,duration,"mosi","miso"
"SPI","enable",0.000100000,2e-08,,
"SPI","result",0.000110000,1e-06,0x86,0x00
"SPI","result",0.000112000,1e-06,0xB8,0x00
"SPI","result",0.000114000,1e-06,0x9D,0x00
"SPI","result",0.000116000,1e-06,0x8A,0x00
"SPI","disable",0.000120000,2e-08,,
`

func decodeTexts(events []sx128x.Event) []string {
	var texts []string
	for _, r := range sx128x.NewAnalyzer().DecodeAll(events) {
		texts = append(texts, r.Text)
	}
	return texts
}

// ============================================================
// CSV Tests
// ============================================================

func TestReadCSV(t *testing.T) {
	events, err := ReadCSV(strings.NewReader(logic2Export))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}

	if events[0].Kind != sx128x.EventEnable || events[0].Start != 100*time.Microsecond {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].End != 100*time.Microsecond+20*time.Nanosecond {
		t.Errorf("End = %v", events[0].End)
	}
	if !bytes.Equal(events[1].MOSI, []byte{0x86}) || !bytes.Equal(events[1].MISO, []byte{0x00}) {
		t.Errorf("result bytes = % x / % x", events[1].MOSI, events[1].MISO)
	}

	texts := decodeTexts(events)
	if len(texts) != 1 || texts[0] != "SetRfFrequency(2.400000031 GHz)" {
		t.Errorf("decoded %v", texts)
	}
}

func TestReadCSV_Variants(t *testing.T) {
	input := "\ufeffName,Type,Start Time,Duration,MOSI,MISO\n" +
		"SPI,enable,1.5,0,,\n" +
		"SPI,result,1.500001,0,128 0,0 0\n" +
		"SPI,disable,1.500002,0,,\n"
	events, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if !bytes.Equal(events[1].MOSI, []byte{0x80, 0x00}) {
		t.Errorf("MOSI = % x", events[1].MOSI)
	}
	if texts := decodeTexts(events); len(texts) != 1 || texts[0] != "SetStandby(RC)" {
		t.Errorf("decoded %v", texts)
	}
}

func TestReadCSV_SortsByStart(t *testing.T) {
	input := "name,type,start_time,duration,mosi,miso\n" +
		"SPI,disable,0.3,0,,\n" +
		"SPI,enable,0.1,0,,\n" +
		"SPI,result,0.2,0,0xC0,0x00\n"
	events, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	kinds := []sx128x.EventKind{events[0].Kind, events[1].Kind, events[2].Kind}
	want := []sx128x.EventKind{sx128x.EventEnable, sx128x.EventResult, sx128x.EventDisable}
	for i := range kinds {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "header"},
		{"missing columns", "name,value\nSPI,1\n", "lacks type/start_time"},
		{"bad time", "type,start_time\nenable,soon\n", "line 2: start_time"},
		{"bad byte", "type,start_time,mosi,miso\nresult,0.1,0x100,0\n", "line 2: mosi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	events, err := ReadCSV(strings.NewReader(logic2Export))
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, events); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	again, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got, want := decodeTexts(again), decodeTexts(events); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("round trip changed decode: %v vs %v", got, want)
	}
}

// ============================================================
// CBOR Event Log Tests
// ============================================================

func TestCBORLog_RoundTrip(t *testing.T) {
	events, err := ReadCSV(strings.NewReader(logic2Export))
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	lw := NewLogWriter(&buf)
	for _, ev := range events {
		if err := lw.Write(ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if lw.Count() != len(events) {
		t.Errorf("Count() = %d", lw.Count())
	}

	got, err := ReadCBOR(&buf)
	if err != nil {
		t.Fatalf("ReadCBOR: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, wrote %d", len(got), len(events))
	}
	for i := range got {
		if got[i].Kind != events[i].Kind || got[i].Start != events[i].Start || got[i].End != events[i].End {
			t.Errorf("event %d = %+v, want %+v", i, got[i], events[i])
		}
		if !bytes.Equal(got[i].MOSI, events[i].MOSI) && len(events[i].MOSI) > 0 {
			t.Errorf("event %d MOSI = % x", i, got[i].MOSI)
		}
	}
}

func TestReadCBOR_Empty(t *testing.T) {
	events, err := ReadCBOR(bytes.NewReader(nil))
	if err != nil || len(events) != 0 {
		t.Errorf("events=%v err=%v", events, err)
	}
}

func TestReadCBOR_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCBOR(&buf, []sx128x.Event{{Kind: sx128x.EventEnable, Start: time.Second}}); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if _, err := ReadCBOR(bytes.NewReader(data[:len(data)-1])); err == nil {
		t.Errorf("truncated log should fail")
	}
}

// ============================================================
// Digital Capture Tests
// ============================================================

func TestTransferEvents(t *testing.T) {
	transfers := []Transfer{
		{Start: 0.5, MOSI: []byte{0x8A, 0x01}, MISO: []byte{0x00, 0x00}},
		{Start: 0.75, MOSI: []byte{0x8B, 0x70, 0x18, 0x01}, MISO: make([]byte, 4)},
	}
	events := TransferEvents(transfers)
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	if events[0].Start != 500*time.Millisecond || events[3].Start != 750*time.Millisecond {
		t.Errorf("start times %v %v", events[0].Start, events[3].Start)
	}

	texts := decodeTexts(events)
	want := []string{"SetPacketType(LORA)", "SetModulationParams(LORA:SP=7,BW=812.5 kHz,CR=4/5)"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("decoded %v, want %v", texts, want)
	}
}

func TestLoadDigital_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDigital(DigitalFiles{
		Clock:  filepath.Join(dir, "clk.bin"),
		Enable: filepath.Join(dir, "cs.bin"),
		MOSI:   filepath.Join(dir, "mosi.bin"),
		MISO:   filepath.Join(dir, "miso.bin"),
	})
	if err == nil {
		t.Errorf("missing channel files should fail")
	}
}

type failingScanner struct{ err error }

func (f failingScanner) Scan(_, _, _, _ *saleae.DigitalFile) ([]analyzers.TxSPI, error) {
	return nil, f.err
}

func TestScanTransfers_ScanError(t *testing.T) {
	scanErr := errors.New("enable channel never asserted")
	events, err := scanTransfers(failingScanner{scanErr}, nil, nil, nil, nil)
	if !errors.Is(err, scanErr) {
		t.Fatalf("err = %v, want wrapped scan error", err)
	}
	if !strings.Contains(err.Error(), "spi scan") || events != nil {
		t.Errorf("err = %v, events = %v", err, events)
	}
}

// ============================================================
// Load Tests
// ============================================================

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"capture.csv":     FormatCSV,
		"CAPTURE.CSV":     FormatCSV,
		"session.cbor":    FormatCBOR,
		"digital_0.bin":   FormatDigital,
		"capture.sal":     FormatUnknown,
		"no_extension":    FormatUnknown,
		"dir.d/table.txt": FormatCSV,
	}
	for path, want := range tests {
		if got := DetectFormat(path); got != want {
			t.Errorf("DetectFormat(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "capture.csv")
	if err := os.WriteFile(csvPath, []byte(logic2Export), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err := Load(csvPath)
	if err != nil || len(events) != 6 {
		t.Fatalf("Load(csv): %d events, err=%v", len(events), err)
	}

	var buf bytes.Buffer
	if err := WriteCBOR(&buf, events); err != nil {
		t.Fatal(err)
	}
	cborPath := filepath.Join(dir, "capture.cbor")
	if err := os.WriteFile(cborPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	events, err = Load(cborPath)
	if err != nil || len(events) != 6 {
		t.Fatalf("Load(cbor): %d events, err=%v", len(events), err)
	}

	if _, err := Load(filepath.Join(dir, "digital_0.bin")); err == nil {
		t.Errorf("digital files cannot be loaded alone")
	}
	if _, err := Load(filepath.Join(dir, "missing.csv")); err == nil {
		t.Errorf("missing file should fail")
	}
}
