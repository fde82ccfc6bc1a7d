// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================
// Event Helpers
// ============================================================

func us(n int) time.Duration {
	return time.Duration(n) * time.Microsecond
}

func enable(t time.Duration) Event {
	return Event{Kind: EventEnable, Start: t, End: t}
}

func disable(t time.Duration) Event {
	return Event{Kind: EventDisable, Start: t, End: t + time.Microsecond}
}

func busError(t time.Duration) Event {
	return Event{Kind: EventError, Start: t, End: t + time.Microsecond}
}

func transfer(t time.Duration, mosi, miso byte) Event {
	return Event{Kind: EventResult, Start: t, End: t + time.Microsecond, MOSI: []byte{mosi}, MISO: []byte{miso}}
}

// transaction builds the events of one complete select..deselect span
// starting at t, one byte per microsecond
func transaction(t time.Duration, mosi, miso []byte) []Event {
	events := []Event{enable(t)}
	for i := range mosi {
		var in byte
		if i < len(miso) {
			in = miso[i]
		}
		events = append(events, transfer(t+us(i+1), mosi[i], in))
	}
	return append(events, disable(t+us(len(mosi)+1)))
}

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// ============================================================
// Byte Sequence Builder
// ============================================================

func TestBuildSequences(t *testing.T) {
	frames := []Frame{
		{Outgoing: []byte{0x18}, Incoming: []byte{0xA0}},
		{Outgoing: []byte{0x00, 0x10}, Incoming: []byte{0xA1, 0xA2}},
		{Outgoing: []byte{0xAB}, Incoming: []byte{0xA3}},
	}
	out, in := BuildSequences(frames)
	if string(out) != string([]byte{0x18, 0x00, 0x10, 0xAB}) {
		t.Errorf("outgoing = % x", out)
	}
	if string(in) != string([]byte{0xA0, 0xA1, 0xA2, 0xA3}) {
		t.Errorf("incoming = % x", in)
	}

	out, in = BuildSequences(nil)
	if out == nil || in == nil || len(out) != 0 || len(in) != 0 {
		t.Errorf("empty buffer should give empty sequences, got %v %v", out, in)
	}
}

// ============================================================
// Analyzer
// ============================================================

func TestAnalyzer_Transaction(t *testing.T) {
	a := NewAnalyzer()
	events := transaction(us(100), []byte{0x18, 0x00, 0x10, 0xAB, 0xCD}, nil)

	var results []*Result
	for i, ev := range events {
		r := a.Decode(ev)
		if i < len(events)-1 && r != nil {
			t.Fatalf("event %d (%s) produced a record: %v", i, ev.Kind, r)
		}
		if r != nil {
			results = append(results, r)
		}
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 record, got %d", len(results))
	}
	r := results[0]
	if r.Kind != ResultTransaction {
		t.Fatalf("expected transaction, got %s: %s", r.Kind, r.Text)
	}
	if r.Text != "WriteRegister(@0x10,0xab 0xcd)" {
		t.Errorf("Text = %q", r.Text)
	}
	if r.Start != us(100) {
		t.Errorf("Start = %v, want enable time", r.Start)
	}
	if r.End != us(107) {
		t.Errorf("End = %v, want disable end time", r.End)
	}
	if r.Command == nil || r.Command.Name != "WriteRegister" {
		t.Errorf("Command = %+v", r.Command)
	}
	if len(r.Outgoing) != 5 || len(r.Incoming) != 5 {
		t.Errorf("sequences: % x / % x", r.Outgoing, r.Incoming)
	}
}

func TestAnalyzer_EmptyTransaction(t *testing.T) {
	a := NewAnalyzer()
	a.Decode(enable(0))
	r := a.Decode(disable(us(1)))
	if r == nil || r.Kind != ResultTransaction {
		t.Fatalf("expected transaction record, got %+v", r)
	}
	if r.Text != "Unknown()" {
		t.Errorf("Text = %q, want Unknown()", r.Text)
	}
}

func TestAnalyzer_PacketTypePersists(t *testing.T) {
	a := NewAnalyzer()
	var events []Event
	events = append(events, transaction(us(0), []byte{0x8A, 0x01}, nil)...)
	events = append(events, transaction(us(10), []byte{0x8B, 0x70, 0x18, 0x01}, nil)...)
	events = append(events, transaction(us(20), []byte{0x1D, 0, 0, 0, 0, 0, 0}, []byte{0, 0, 0x0A, 0x04, 0, 0, 0})...)

	results := a.DecodeAll(events)
	want := []string{
		"SetPacketType(LORA)",
		"SetModulationParams(LORA:SP=7,BW=812.5 kHz,CR=4/5)",
		"GetPacketStatus()=LORA:rssiSync=-5.0 dBm, snr=1.0 dB",
	}
	if len(results) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Text != want[i] {
			t.Errorf("record %d = %q, want %q", i, r.Text, want[i])
		}
	}
	if a.State().PacketType() != PacketTypeLoRa {
		t.Errorf("state = %s", a.State().PacketType())
	}
}

func TestAnalyzer_WithPacketType(t *testing.T) {
	a := NewAnalyzer(WithPacketType(PacketTypeFLRC))
	results := a.DecodeAll(transaction(0, []byte{0x8B, 0x45, 0x00, 0x10}, nil))
	if len(results) != 1 || results[0].Text != "SetModulationParams(FLRC:BR=1.3,BW=1.2CR=1/2BT=1)" {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestAnalyzer_IndependentInstances(t *testing.T) {
	a := NewAnalyzer()
	b := NewAnalyzer()
	a.DecodeAll(transaction(0, []byte{0x8A, 0x04}, nil))
	if b.State().PacketType() != PacketTypeUndefined {
		t.Errorf("state leaked between analyzers: %s", b.State().PacketType())
	}
}

func TestAnalyzer_BusError(t *testing.T) {
	a := NewAnalyzer(WithPacketType(PacketTypeGFSK))
	a.Decode(enable(us(5)))
	r := a.Decode(busError(us(5)))
	if r == nil || r.Kind != ResultError || r.Reason != ReasonBusError {
		t.Fatalf("expected bus error record, got %+v", r)
	}
	if r.Text != busErrorMessage {
		t.Errorf("Text = %q", r.Text)
	}

	// Activity during the failed transaction is still buffered but never decoded
	a.Decode(transfer(us(6), 0x8A, 0x00))
	a.Decode(transfer(us(7), 0x01, 0x00))

	r = a.Decode(disable(us(8)))
	if r == nil || r.Kind != ResultError || r.Reason != ReasonInvalidTransaction {
		t.Fatalf("expected invalid transaction record, got %+v", r)
	}
	want := "Invalid SPI transaction (spi_enable=True, error=True, transaction_start_time=0.000005000)"
	if r.Text != want {
		t.Errorf("Text = %q, want %q", r.Text, want)
	}
	if r.Start != us(8) || r.End != us(9) {
		t.Errorf("error record span = %v-%v, want the disable frame", r.Start, r.End)
	}
	if a.State().PacketType() != PacketTypeGFSK {
		t.Errorf("state changed by failed transaction: %s", a.State().PacketType())
	}

	// The next transaction starts from idle
	results := a.DecodeAll(transaction(us(20), []byte{0x80, 0x01}, nil))
	if len(results) != 1 || results[0].Text != "SetStandby(XOSC)" {
		t.Errorf("unexpected results after recovery: %+v", results)
	}
}

func TestAnalyzer_DisableWithoutEnable(t *testing.T) {
	a := NewAnalyzer()
	a.Decode(transfer(us(1), 0x80, 0x00))
	r := a.Decode(disable(us(2)))
	if r == nil || r.Reason != ReasonInvalidTransaction {
		t.Fatalf("expected invalid transaction, got %+v", r)
	}
	want := "Invalid SPI transaction (spi_enable=False, error=False, transaction_start_time=None)"
	if r.Text != want {
		t.Errorf("Text = %q, want %q", r.Text, want)
	}
}

func TestAnalyzer_UnexpectedEvent(t *testing.T) {
	logger, logs := observedLogger()
	a := NewAnalyzer(WithLogger(logger))
	a.Decode(enable(0))
	a.Decode(transfer(us(1), 0x80, 0x00))

	r := a.Decode(Event{Kind: "glitch", Start: us(2), End: us(3)})
	if r == nil || r.Reason != ReasonUnexpectedEvent {
		t.Fatalf("expected unexpected event record, got %+v", r)
	}
	if r.Text != "Unexpected frame type from input analyzer: glitch" {
		t.Errorf("Text = %q", r.Text)
	}
	if logs.FilterMessage("unexpected event kind").Len() != 1 {
		t.Errorf("expected a warning to be logged")
	}

	// The open transaction is untouched
	a.Decode(transfer(us(4), 0x01, 0x00))
	r = a.Decode(disable(us(5)))
	if r == nil || r.Text != "SetStandby(XOSC)" {
		t.Errorf("transaction disturbed by unexpected event: %+v", r)
	}
}

func TestAnalyzer_ReselectDiscards(t *testing.T) {
	logger, logs := observedLogger()
	a := NewAnalyzer(WithLogger(logger))

	a.Decode(enable(0))
	a.Decode(transfer(us(1), 0x80, 0x00))
	if r := a.Decode(enable(us(10))); r != nil {
		t.Fatalf("re-select must not emit a record, got %+v", r)
	}
	a.Decode(transfer(us(11), 0xC1, 0x00))
	r := a.Decode(disable(us(12)))

	if r == nil || r.Text != "SetFs()" {
		t.Errorf("expected only the second transaction, got %+v", r)
	}
	if r != nil && r.Start != us(10) {
		t.Errorf("Start = %v, want re-select time", r.Start)
	}
	if a.Discarded() != 1 {
		t.Errorf("Discarded() = %d, want 1", a.Discarded())
	}
	entries := logs.FilterMessage("discarding unterminated transaction").All()
	if len(entries) != 1 {
		t.Fatalf("expected one discard warning, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %s, want warn", entries[0].Level)
	}
	if entries[0].ContextMap()["frames"] != int64(1) {
		t.Errorf("frames field = %v", entries[0].ContextMap()["frames"])
	}
}

func TestAnalyzer_UnknownCommandLogged(t *testing.T) {
	logger, logs := observedLogger()
	a := NewAnalyzer(WithLogger(logger))
	results := a.DecodeAll(transaction(0, []byte{0x42, 0x01}, nil))
	if len(results) != 1 || results[0].Text != "Unknown(42 01)" {
		t.Fatalf("unexpected results: %+v", results)
	}
	entries := logs.FilterMessage("unknown command").All()
	if len(entries) != 1 {
		t.Fatalf("expected one debug entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["mosi"] != "42 01" {
		t.Errorf("mosi field = %v", entries[0].ContextMap()["mosi"])
	}
}

func TestAssembler_ActivityWhileIdleIgnored(t *testing.T) {
	asm := NewAssembler(NewProtocolState(), nil)
	asm.Activity(transfer(0, 0x80, 0x00))
	if asm.Active() {
		t.Fatalf("activity must not open a transaction")
	}
	asm.Select(enable(us(1)))
	if !asm.Active() {
		t.Fatalf("select should open a transaction")
	}
	asm.Activity(transfer(us(2), 0xC0, 0x00))
	r := asm.Deselect(disable(us(3)))
	if r.Text != "GetStatus()" {
		t.Errorf("Text = %q (idle activity leaked into the transaction?)", r.Text)
	}
	if asm.Active() {
		t.Errorf("assembler should be idle after deselect")
	}
}

func TestAnalyzer_MultiByteFrames(t *testing.T) {
	a := NewAnalyzer()
	a.Decode(enable(0))
	a.Decode(Event{Kind: EventResult, Start: us(1), MOSI: []byte{0x19, 0x09}, MISO: []byte{0, 0}})
	a.Decode(Event{Kind: EventResult, Start: us(2), MOSI: []byte{0x25, 0, 0}, MISO: []byte{0, 0, 0x37}})
	r := a.Decode(disable(us(3)))
	if r == nil || r.Text != "ReadRegister(@0x925)=0x37" {
		t.Errorf("got %+v", r)
	}
}

func TestEventKind_Valid(t *testing.T) {
	for _, k := range []EventKind{EventEnable, EventResult, EventDisable, EventError} {
		if !k.Valid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if EventKind("frame").Valid() {
		t.Errorf("unknown kind reported valid")
	}
}

func TestResultKind_String(t *testing.T) {
	if ResultTransaction.String() != "SpiTransaction" || ResultError.String() != "SpiTransactionError" {
		t.Errorf("unexpected names %q %q", ResultTransaction, ResultError)
	}
	if !strings.Contains(ReasonBusError.String(), "bus") {
		t.Errorf("ReasonBusError = %q", ReasonBusError)
	}
}
