// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package probe implements the link between sxscope and a sniffer bridge:
// a microcontroller that samples the SX128x SPI bus and streams every
// chip-select edge and byte transfer over serial or WebSocket.
//
// Wire format (before byte stuffing):
//
//	START | LENGTH | SEQ (2, little-endian) | CBOR payload | CRC (2, big-endian) | END
//
// The CBOR payload is a two element array [msg_type, payload]. The CRC is
// CRC-16-CCITT over LENGTH, SEQ and the payload. START, END and ESC bytes
// inside the frame are escaped as ESC followed by the byte XOR 0x20.
package probe

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Packet size limits
const (
	MaxPayloadSize = 240
	SeqSize        = 2
	MaxPacketSize  = 1 + SeqSize + MaxPayloadSize + 2 // length + seq + payload + crc
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Bridge → Host 0x00-0x0F
const (
	MsgBusEvent     = 0x01
	MsgBridgeStatus = 0x02
	MsgPingResponse = 0x0F
)

// Message types - Host → Bridge 0x10-0x1F
const (
	MsgCaptureStart = 0x10
	MsgCaptureStop  = 0x11
	MsgPingRequest  = 0x1F
)

// Decoder states
const (
	stateIdle = iota
	stateLength
	stateSeq
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)
