// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import "time"

// EventKind is the frame type reported by the SPI input analyzer
type EventKind string

// Valid reports whether k is one of the four recognized bus event kinds
func (k EventKind) Valid() bool {
	switch k {
	case EventEnable, EventResult, EventDisable, EventError:
		return true
	}
	return false
}

// Event is one bus event. Timestamps are offsets from the start of the
// capture. MOSI and MISO are only set for EventResult and have equal length.
type Event struct {
	Kind  EventKind
	Start time.Duration
	End   time.Duration
	MOSI  []byte
	MISO  []byte
}

// Frame is one unit of bus activity buffered inside a transaction
type Frame struct {
	Time     time.Duration
	Outgoing []byte
	Incoming []byte
}

// BuildSequences concatenates the outgoing and incoming payloads of frames
// in arrival order
func BuildSequences(frames []Frame) (outgoing, incoming []byte) {
	outgoing = []byte{}
	incoming = []byte{}
	for _, f := range frames {
		outgoing = append(outgoing, f.Outgoing...)
		incoming = append(incoming, f.Incoming...)
	}
	return outgoing, incoming
}
