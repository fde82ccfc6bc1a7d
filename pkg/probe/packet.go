// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/fxamacker/cbor/v2"
)

// Packet represents one decoded probe link frame
type Packet struct {
	length      uint8
	seq         uint16
	cborPayload []byte // Raw CBOR bytes: [msg_type, payload]
	crc         uint16
	timestamp   time.Time

	// Cached envelope (lazy parsing)
	msgType  uint8
	payload  cbor.RawMessage
	parsed   bool
	parseErr error
}

// NewPacket creates a packet carrying an already encoded CBOR envelope
func NewPacket(seq uint16, cborPayload []byte) *Packet {
	return &Packet{
		length:      uint8(len(cborPayload)),
		seq:         seq,
		cborPayload: cborPayload,
		timestamp:   time.Now(),
	}
}

// NewEventPacket wraps a bus event
func NewEventPacket(seq uint16, ev sx128x.Event) (*Packet, error) {
	return newMessagePacket(seq, MsgBusEvent, NewEventRecord(ev))
}

// NewStatusPacket wraps a bridge status report
func NewStatusPacket(seq uint16, status BridgeStatus) (*Packet, error) {
	return newMessagePacket(seq, MsgBridgeStatus, status)
}

// NewPingRequest creates a ping for the bridge
func NewPingRequest(seq uint16) *Packet {
	p, _ := newMessagePacket(seq, MsgPingRequest, nil)
	return p
}

// NewCaptureCommand asks the bridge to start or stop streaming
func NewCaptureCommand(seq uint16, start bool) *Packet {
	msgType := uint8(MsgCaptureStop)
	if start {
		msgType = MsgCaptureStart
	}
	p, _ := newMessagePacket(seq, msgType, nil)
	return p
}

func newMessagePacket(seq uint16, msgType uint8, payload interface{}) (*Packet, error) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	p := NewPacket(seq, data)
	p.msgType = msgType
	p.parsed = true
	_, p.payload, _ = decodeMessage(data)
	return p, nil
}

// ensureParsed parses the CBOR envelope if not already done
func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	p.msgType, p.payload, p.parseErr = decodeMessage(p.cborPayload)
}

// Length returns the CBOR payload length
func (p *Packet) Length() uint8 {
	return p.length
}

// Seq returns the bridge's frame sequence number
func (p *Packet) Seq() uint16 {
	return p.seq
}

// Type returns the message type (parsed from CBOR)
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR envelope bytes
func (p *Packet) Payload() []byte {
	return p.cborPayload
}

// CRC returns the checksum received on the wire
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns when the packet was received
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// ParseError returns the CBOR envelope error, if any
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

// Event decodes a MsgBusEvent payload
func (p *Packet) Event() (sx128x.Event, error) {
	var rec EventRecord
	if err := p.decodePayload(MsgBusEvent, &rec); err != nil {
		return sx128x.Event{}, err
	}
	return rec.Event(), nil
}

// Status decodes a MsgBridgeStatus payload
func (p *Packet) Status() (BridgeStatus, error) {
	var status BridgeStatus
	err := p.decodePayload(MsgBridgeStatus, &status)
	return status, err
}

// Ping decodes a MsgPingResponse payload
func (p *Packet) Ping() (PingResponse, error) {
	var resp PingResponse
	err := p.decodePayload(MsgPingResponse, &resp)
	return resp, err
}

func (p *Packet) decodePayload(want uint8, v interface{}) error {
	p.ensureParsed()
	if p.parseErr != nil {
		return p.parseErr
	}
	if p.msgType != want {
		return fmt.Errorf("message type %s is not %s", FormatMessageType(p.msgType), FormatMessageType(want))
	}
	if err := cbor.Unmarshal(p.payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", FormatMessageType(want), err)
	}
	return nil
}
