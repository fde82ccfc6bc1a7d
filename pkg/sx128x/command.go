// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import "periph.io/x/conn/v3/physic"

// Command is one decoded command invocation
type Command struct {
	// Opcode is the first MOSI byte (0 when MOSI was empty)
	Opcode byte
	// Name is the command name, "Unknown" for unmatched transactions
	Name string
	// Text is the display string, e.g. "SetStandby(RC)"
	Text string
	// Known is false when the Unknown fallback was used
	Known bool
	// DependsOnPacketType is set for commands whose layout follows the packet type
	DependsOnPacketType bool
	// PacketType is the packet type in effect after the command was decoded
	PacketType PacketType
	// Frequency is the RF frequency programmed by SetRfFrequency
	Frequency physic.Frequency
	// FieldErrors names the sub-fields rendered as ERROR
	FieldErrors []string
}

// fieldError records a sub-field that matched no table entry and returns
// the inline placeholder for it
func (c *Command) fieldError(field string) string {
	c.FieldErrors = append(c.FieldErrors, field)
	return fieldError
}

// lookup resolves a raw byte against a table, recording a field error on miss
func (c *Command) lookup(field string, table map[byte]string, raw byte) string {
	if s, ok := table[raw]; ok {
		return s
	}
	return c.fieldError(field)
}
