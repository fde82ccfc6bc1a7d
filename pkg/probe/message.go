// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/fxamacker/cbor/v2"
)

// message is the CBOR envelope: [msg_type, payload]
type message struct {
	_       struct{} `cbor:",toarray"`
	Type    uint8
	Payload cbor.RawMessage
}

// EventRecord is the CBOR form of one bus event. It is shared by the
// probe link and capture event logs.
type EventRecord struct {
	Kind  string `cbor:"0,keyasint"`
	Start int64  `cbor:"1,keyasint"` // nanoseconds since capture start
	End   int64  `cbor:"2,keyasint,omitempty"`
	MOSI  []byte `cbor:"3,keyasint,omitempty"`
	MISO  []byte `cbor:"4,keyasint,omitempty"`
}

// NewEventRecord converts a bus event to its wire record
func NewEventRecord(ev sx128x.Event) EventRecord {
	return EventRecord{
		Kind:  string(ev.Kind),
		Start: int64(ev.Start),
		End:   int64(ev.End),
		MOSI:  ev.MOSI,
		MISO:  ev.MISO,
	}
}

// Event converts the record back to a bus event. A missing end time
// means the event is instantaneous.
func (r EventRecord) Event() sx128x.Event {
	end := r.End
	if end < r.Start {
		end = r.Start
	}
	return sx128x.Event{
		Kind:  sx128x.EventKind(r.Kind),
		Start: time.Duration(r.Start),
		End:   time.Duration(end),
		MOSI:  r.MOSI,
		MISO:  r.MISO,
	}
}

// BridgeStatus is reported by the bridge on connect and periodically
type BridgeStatus struct {
	Firmware string `cbor:"0,keyasint,omitempty"`
	SPIClock uint64 `cbor:"1,keyasint,omitempty"` // Hz, measured
	Dropped  uint64 `cbor:"2,keyasint,omitempty"` // events lost to buffer overflow
	Uptime   uint64 `cbor:"3,keyasint,omitempty"` // milliseconds
}

// PingResponse answers a ping request
type PingResponse struct {
	Uptime uint64 `cbor:"0,keyasint"` // milliseconds
}

// encodeMessage builds the CBOR envelope for msgType. A nil payload is
// encoded as CBOR null.
func encodeMessage(msgType uint8, payload interface{}) ([]byte, error) {
	raw, err := cbor.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return cbor.Marshal(message{Type: msgType, Payload: raw})
}

// decodeMessage splits a CBOR envelope into its type and raw payload
func decodeMessage(data []byte) (uint8, cbor.RawMessage, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("empty CBOR payload")
	}
	var msg message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return 0, nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return msg.Type, msg.Payload, nil
}
