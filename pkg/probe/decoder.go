// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is wrapped by DecodeByte when a frame fails its checksum
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder implements the probe link frame decoder state machine
type Decoder struct {
	state       int
	buffer      []byte
	bufferIndex int
	escapeNext  bool
	seqBytes    int
	packet      *Packet
	rawBuffer   []byte // Accumulate raw bytes including framing

	haveSeq bool
	lastSeq uint16
	dropped uint64
}

// NewDecoder creates a new link decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		buffer:    make([]byte, MaxPacketSize),
		rawBuffer: make([]byte, 0, MaxPacketSize*2),
	}
}

// Reset returns the decoder to idle, discarding any partial frame.
// Sequence tracking is kept.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.bufferIndex = 0
	d.seqBytes = 0
	d.escapeNext = false
	d.packet = nil
	d.rawBuffer = d.rawBuffer[:0]
}

// GetRawBytes returns the accumulated raw bytes since the last frame
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// Dropped returns the number of frames missing from the sequence so far
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

// DecodeByte processes a single byte through the decoder state machine
// Returns a completed packet, or nil if the packet is incomplete
// Returns an error if decoding fails; the decoder is then ready for the next frame
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.rawBuffer = append(d.rawBuffer, b)

	// Framing bytes never appear escaped, so they win even after ESC
	switch {
	case b == StartByte:
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength
		return nil, nil
	case b == EndByte:
		return d.finish()
	case d.escapeNext:
		b ^= EscXor
		d.escapeNext = false
	case b == EscByte:
		d.escapeNext = true
		return nil, nil
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if b > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.packet = &Packet{length: b, cborPayload: make([]byte, 0, b)}
		d.push(b)
		d.state = stateSeq
		return nil, nil

	case stateSeq:
		d.packet.seq |= uint16(b) << (d.seqBytes * 8)
		d.push(b)
		d.seqBytes++
		if d.seqBytes == SeqSize {
			if d.packet.length == 0 {
				d.state = stateCRC1
			} else {
				d.state = statePayload
			}
		}
		return nil, nil

	case statePayload:
		d.packet.cborPayload = append(d.packet.cborPayload, b)
		d.push(b)
		if len(d.packet.cborPayload) >= int(d.packet.length) {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.packet.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.packet.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("unexpected byte 0x%02X after CRC", b)
	}
}

// push appends a CRC-covered byte; the length byte bounds the buffer
func (d *Decoder) push(b byte) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++
}

func (d *Decoder) finish() (*Packet, error) {
	defer d.Reset()

	if d.state != stateEnd {
		return nil, fmt.Errorf("unexpected END byte in state %d", d.state)
	}

	packet := d.packet
	calculated := CalculateCRC(d.buffer[:d.bufferIndex])
	if packet.crc != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, packet.crc)
	}

	d.trackSequence(packet.seq)

	packet.timestamp = time.Now()
	return packet, nil
}

// seqReorderWindow is how far behind the newest sequence number a frame
// may arrive and still be treated as late rather than a bridge restart
const seqReorderWindow = 256

// trackSequence counts forward gaps in the frame sequence. Duplicates and
// late frames are not counted; a large backward jump restarts tracking.
func (d *Decoder) trackSequence(seq uint16) {
	if !d.haveSeq {
		d.haveSeq = true
		d.lastSeq = seq
		return
	}

	ahead := seq - d.lastSeq
	switch {
	case ahead == 0:
	case ahead < 0x8000:
		d.dropped += uint64(ahead - 1)
		d.lastSeq = seq
	case d.lastSeq-seq <= seqReorderWindow:
	default:
		d.lastSeq = seq
	}
}

// Decode feeds data through the decoder and returns every completed packet.
// Decode errors are collected; they do not stop the stream.
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}
