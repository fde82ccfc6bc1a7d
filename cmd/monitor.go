// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// linkUpdate is what one link packet (or decode error) contributed
type linkUpdate struct {
	result           *sx128x.Result
	validationErrors []sx128x.ValidationError
	linkErr          error
	packetType       sx128x.PacketType
	status           *probe.BridgeStatus
	ping             *probe.PingResponse

	synced  bool // first update after the link synchronized
	skipped int  // decode errors seen before sync
	lost    uint64
}

// linkMonitor turns the probe link into validated result records. Decode
// errors before the first valid packet are counted, not reported: the
// bridge may have been mid-frame when we connected. Synchronizing emits
// nothing by itself; the sync is reported on the next update.
type linkMonitor struct {
	decoder      *probe.Decoder
	analyzer     *sx128x.Analyzer
	synchronized bool
	syncPending  bool
	invalidBytes int
	dropped      uint64
}

func newLinkMonitor(analyzer *sx128x.Analyzer) *linkMonitor {
	return &linkMonitor{
		decoder:  probe.NewDecoder(),
		analyzer: analyzer,
	}
}

// reset prepares for a new connection; protocol state carries over
func (m *linkMonitor) reset() {
	m.decoder = probe.NewDecoder()
	m.synchronized = false
	m.syncPending = false
	m.invalidBytes = 0
	m.dropped = 0
}

// feed decodes raw link bytes, calling emit for each meaningful update
func (m *linkMonitor) feed(data []byte, emit func(linkUpdate)) {
	for _, b := range data {
		packet, decodeErr := m.decoder.DecodeByte(b)
		if decodeErr == nil && packet == nil {
			continue
		}
		if u, ok := m.process(packet, decodeErr); ok {
			emit(u)
		}
	}
}

func (m *linkMonitor) process(packet *probe.Packet, decodeErr error) (linkUpdate, bool) {
	if decodeErr != nil {
		if !m.synchronized {
			m.invalidBytes++
			return linkUpdate{}, false
		}
		return linkUpdate{linkErr: decodeErr}, true
	}

	var u linkUpdate
	if !m.synchronized {
		m.synchronized = true
		m.syncPending = true
	}
	if d := m.decoder.Dropped(); d != m.dropped {
		u.lost = d - m.dropped
		m.dropped = d
	}

	switch packet.Type() {
	case probe.MsgBusEvent:
		ev, err := packet.Event()
		if err != nil {
			u.linkErr = err
			break
		}
		if r := m.analyzer.Decode(ev); r != nil {
			u.result = r
			u.validationErrors = sx128x.ValidateResult(r)
			u.packetType = m.analyzer.State().PacketType()
		}
	case probe.MsgBridgeStatus:
		status, err := packet.Status()
		if err != nil {
			u.linkErr = err
			break
		}
		u.status = &status
	case probe.MsgPingResponse:
		ping, err := packet.Ping()
		if err != nil {
			u.linkErr = err
			break
		}
		u.ping = &ping
	}

	if u.result == nil && u.linkErr == nil && u.status == nil && u.ping == nil && u.lost == 0 {
		return linkUpdate{}, false
	}
	if m.syncPending {
		m.syncPending = false
		u.synced = true
		u.skipped = m.invalidBytes
	}
	return u, true
}
