// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"
	"strings"
)

// PacketType is the modem configured on the radio. It changes how
// SetModulationParams, SetPacketParams and GetPacketStatus bytes are read.
type PacketType uint8

// Packet type wire codes
const (
	PacketTypeGFSK      PacketType = 0x00
	PacketTypeLoRa      PacketType = 0x01
	PacketTypeRanging   PacketType = 0x02
	PacketTypeFLRC      PacketType = 0x03
	PacketTypeBLE       PacketType = 0x04
	PacketTypeUndefined PacketType = 0xFF
)

// packetTypes is the single mapping between wire codes and names. Every
// opcode that reads or writes a packet type goes through it.
var packetTypes = []struct {
	code byte
	typ  PacketType
	name string
}{
	{0x00, PacketTypeGFSK, "GFSK"},
	{0x01, PacketTypeLoRa, "LORA"},
	{0x02, PacketTypeRanging, "RANGING"},
	{0x03, PacketTypeFLRC, "FLRC"},
	{0x04, PacketTypeBLE, "BLE"},
}

// PacketTypeFromCode maps a wire code to its packet type.
// Unknown codes return PacketTypeUndefined and false.
func PacketTypeFromCode(code byte) (PacketType, bool) {
	for _, pt := range packetTypes {
		if pt.code == code {
			return pt.typ, true
		}
	}
	return PacketTypeUndefined, false
}

// ParsePacketType parses a packet type name (case-insensitive).
func ParsePacketType(name string) (PacketType, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "UNDEFINED" || name == "" {
		return PacketTypeUndefined, nil
	}
	for _, pt := range packetTypes {
		if pt.name == name {
			return pt.typ, nil
		}
	}
	return PacketTypeUndefined, fmt.Errorf("unknown packet type %q (want GFSK, LORA, RANGING, FLRC, BLE or UNDEFINED)", name)
}

// Code returns the wire code of the packet type.
func (p PacketType) Code() byte {
	for _, pt := range packetTypes {
		if pt.typ == p {
			return pt.code
		}
	}
	return byte(PacketTypeUndefined)
}

func (p PacketType) String() string {
	for _, pt := range packetTypes {
		if pt.typ == p {
			return pt.name
		}
	}
	return "UNDEFINED"
}

// ProtocolState holds what the decoder has learned about the radio
// configuration from earlier transactions. It lives for the whole
// decoding session and is never reset between transactions.
//
// The zero value is ready to use and has an undefined packet type.
// ProtocolState is not safe for concurrent use; give each capture stream
// its own instance.
type ProtocolState struct {
	packetType PacketType
	known      bool // packetType is meaningful only when set
}

// NewProtocolState returns a state with an undefined packet type.
func NewProtocolState() *ProtocolState {
	return &ProtocolState{}
}

// PacketType returns the packet type currently in effect.
func (s *ProtocolState) PacketType() PacketType {
	if !s.known {
		return PacketTypeUndefined
	}
	return s.packetType
}

// SetPacketType records a new packet type.
func (s *ProtocolState) SetPacketType(p PacketType) {
	s.packetType = p
	s.known = p != PacketTypeUndefined
}
