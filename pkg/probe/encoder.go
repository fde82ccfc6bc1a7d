// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// Encoder frames packets for the probe link and numbers them.
// The zero value starts at sequence 0.
type Encoder struct {
	seq uint16
}

// NewEncoder creates a new link encoder
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode frames p for transmission, keeping its sequence number
func (e *Encoder) Encode(p *Packet) ([]byte, error) {
	return EncodeFrame(p.Seq(), p.Payload())
}

// EncodeEvent frames a bus event with the next sequence number
func (e *Encoder) EncodeEvent(ev sx128x.Event) ([]byte, error) {
	p, err := NewEventPacket(e.next(), ev)
	if err != nil {
		return nil, err
	}
	return e.Encode(p)
}

// EncodeStatus frames a bridge status report with the next sequence number
func (e *Encoder) EncodeStatus(status BridgeStatus) ([]byte, error) {
	p, err := NewStatusPacket(e.next(), status)
	if err != nil {
		return nil, err
	}
	return e.Encode(p)
}

func (e *Encoder) next() uint16 {
	seq := e.seq
	e.seq++
	return seq
}

// EncodeFrame creates a complete wire-formatted frame around a CBOR envelope.
// Returns the frame bytes ready for transmission, including framing and byte stuffing.
func EncodeFrame(seq uint16, cborPayload []byte) ([]byte, error) {
	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(cborPayload), MaxPayloadSize)
	}

	data := make([]byte, 1+SeqSize, 1+SeqSize+len(cborPayload)+2)
	data[0] = uint8(len(cborPayload))
	binary.LittleEndian.PutUint16(data[1:], seq)
	data = append(data, cborPayload...)
	data = binary.BigEndian.AppendUint16(data, CalculateCRC(data))

	stuffed := stuffBytes(data)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	return append(frame, EndByte), nil
}

// MustEncode frames p and panics on error (for fixed messages such as pings)
func MustEncode(p *Packet) []byte {
	data, err := EncodeFrame(p.Seq(), p.Payload())
	if err != nil {
		panic(fmt.Sprintf("probe: encode error: %v", err))
	}
	return data
}

// stuffBytes escapes START, END and ESC as ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		switch b {
		case StartByte, EndByte, EscByte:
			result = append(result, EscByte, b^EscXor)
		default:
			result = append(result, b)
		}
	}
	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		switch {
		case escapeNext:
			result = append(result, b^EscXor)
			escapeNext = false
		case b == EscByte:
			escapeNext = true
		default:
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}
	return result, nil
}
