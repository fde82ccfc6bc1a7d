// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// linkFrames encodes one transaction as enable/result/disable event frames
func linkFrames(t *testing.T, enc *probe.Encoder, at time.Duration, mosi, miso []byte) []byte {
	t.Helper()
	var out []byte
	for _, ev := range []sx128x.Event{
		{Kind: sx128x.EventEnable, Start: at, End: at},
		{Kind: sx128x.EventResult, Start: at, End: at + time.Microsecond, MOSI: mosi, MISO: miso},
		{Kind: sx128x.EventDisable, Start: at + 2*time.Microsecond, End: at + 2*time.Microsecond},
	} {
		frame, err := enc.EncodeEvent(ev)
		if err != nil {
			t.Fatalf("EncodeEvent: %v", err)
		}
		out = append(out, frame...)
	}
	return out
}

func collect(m *linkMonitor, data []byte) []linkUpdate {
	var updates []linkUpdate
	m.feed(data, func(u linkUpdate) {
		updates = append(updates, u)
	})
	return updates
}

func TestLinkMonitor_DecodesTransactions(t *testing.T) {
	enc := probe.NewEncoder()
	m := newLinkMonitor(sx128x.NewAnalyzer())

	// A torn frame before the first valid one only counts as skipped
	stream := []byte{probe.StartByte, 0x05, probe.EndByte}
	stream = append(stream, linkFrames(t, enc, time.Millisecond, []byte{0x80, 0x00}, []byte{0x00, 0x00})...)
	stream = append(stream, linkFrames(t, enc, 2*time.Millisecond, []byte{0x8A, 0x01}, []byte{0x00, 0x00})...)

	updates := collect(m, stream)
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if !updates[0].synced || updates[0].skipped != 1 {
		t.Errorf("first update synced=%v skipped=%d", updates[0].synced, updates[0].skipped)
	}

	// enable and result produce nothing; the disable carries the record
	if r := updates[0].result; r == nil || r.Text != "SetStandby(RC)" {
		t.Errorf("first result = %+v", r)
	}
	if len(updates[0].validationErrors) != 0 {
		t.Errorf("clean transaction flagged: %v", updates[0].validationErrors)
	}
	if updates[1].result.Text != "SetPacketType(LORA)" || updates[1].packetType != sx128x.PacketTypeLoRa {
		t.Errorf("second update = %q / %s", updates[1].result.Text, updates[1].packetType)
	}
}

func TestLinkMonitor_CRCErrorAfterSync(t *testing.T) {
	enc := probe.NewEncoder()
	m := newLinkMonitor(sx128x.NewAnalyzer())

	collect(m, linkFrames(t, enc, 0, []byte{0xC0}, []byte{0x00}))

	frame, err := enc.EncodeEvent(sx128x.Event{Kind: sx128x.EventEnable, Start: time.Second, End: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	i := bytes.Index(frame, []byte("enable"))
	if i < 0 {
		t.Fatalf("event kind not found in frame % x", frame)
	}
	frame[i] = 'E'

	updates := collect(m, frame)
	if len(updates) != 1 || !errors.Is(updates[0].linkErr, probe.ErrCRCMismatch) {
		t.Fatalf("updates = %+v", updates)
	}
}

func TestLinkMonitor_LostEvents(t *testing.T) {
	m := newLinkMonitor(sx128x.NewAnalyzer())

	status := func(seq uint16) []byte {
		p, err := probe.NewStatusPacket(seq, probe.BridgeStatus{Firmware: "1.0", Uptime: 1000})
		if err != nil {
			t.Fatal(err)
		}
		return probe.MustEncode(p)
	}

	updates := collect(m, append(status(10), status(15)...))
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].status == nil || updates[0].status.Firmware != "1.0" {
		t.Errorf("status = %+v", updates[0].status)
	}
	if updates[1].lost != 4 {
		t.Errorf("lost = %d, want 4", updates[1].lost)
	}

	// A new connection starts a new sequence
	m.reset()
	updates = collect(m, status(0))
	if len(updates) != 1 || updates[0].lost != 0 || !updates[0].synced {
		t.Errorf("after reset: %+v", updates)
	}
}

func TestLinkMonitor_StateSurvivesReset(t *testing.T) {
	enc := probe.NewEncoder()
	m := newLinkMonitor(sx128x.NewAnalyzer())

	collect(m, linkFrames(t, enc, 0, []byte{0x8A, 0x01}, []byte{0x00, 0x00}))
	m.reset()

	enc = probe.NewEncoder()
	updates := collect(m, linkFrames(t, enc, time.Second, []byte{0x8B, 0x70, 0x18, 0x01}, make([]byte, 4)))
	if len(updates) != 1 || updates[0].result.Text != "SetModulationParams(LORA:SP=7,BW=812.5 kHz,CR=4/5)" {
		t.Errorf("updates = %+v", updates)
	}
}

func TestLinkMonitor_UpdatesPerPacket(t *testing.T) {
	enc := probe.NewEncoder()
	m := newLinkMonitor(sx128x.NewAnalyzer())

	frame := func(b []byte, err error) []byte {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	corrupt := func(b []byte) []byte {
		i := bytes.Index(b, []byte("enable"))
		if i < 0 {
			t.Fatalf("event kind not found in frame % x", b)
		}
		b[i] = 'E'
		return b
	}

	steps := []struct {
		name   string
		data   []byte
		want   int
		synced bool
	}{
		{"torn frame before sync", []byte{probe.StartByte, 0x05, probe.EndByte}, 0, false},
		{"enable", frame(enc.EncodeEvent(sx128x.Event{Kind: sx128x.EventEnable})), 0, false},
		{"result", frame(enc.EncodeEvent(sx128x.Event{Kind: sx128x.EventResult, MOSI: []byte{0xC0}, MISO: []byte{0x00}})), 0, false},
		{"disable", frame(enc.EncodeEvent(sx128x.Event{Kind: sx128x.EventDisable})), 1, true},
		{"bridge status", frame(enc.EncodeStatus(probe.BridgeStatus{Firmware: "1.0"})), 1, false},
		{"corrupt frame after sync", corrupt(frame(enc.EncodeEvent(sx128x.Event{Kind: sx128x.EventEnable}))), 1, false},
	}

	for _, step := range steps {
		updates := collect(m, step.data)
		if len(updates) != step.want {
			t.Fatalf("%s: expected %d updates, got %d: %+v", step.name, step.want, len(updates), updates)
		}
		if len(updates) > 0 && updates[0].synced != step.synced {
			t.Errorf("%s: synced = %v, want %v", step.name, updates[0].synced, step.synced)
		}
	}
}
