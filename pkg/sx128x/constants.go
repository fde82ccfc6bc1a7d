// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sx128x decodes the SPI command protocol spoken between a host
// controller and a Semtech SX1280/SX1281 2.4 GHz transceiver.
//
// Bus events from a logic analyzer (chip-select edges, byte transfers and
// clock errors) are grouped into transactions by the Assembler, and each
// transaction's MOSI/MISO bytes are turned into a readable command
// invocation such as "SetRfFrequency(2.4 GHz)" by Decode.
package sx128x

// Command opcodes (first MOSI byte of a transaction)
const (
	OpNop                     = 0x00
	OpGetPacketType           = 0x03
	OpGetIrqStatus            = 0x15
	OpGetRxBufferStatus       = 0x17
	OpWriteRegister           = 0x18
	OpReadRegister            = 0x19
	OpWriteBuffer             = 0x1A
	OpReadBuffer              = 0x1B
	OpGetPacketStatus         = 0x1D
	OpGetRssiInst             = 0x1F
	OpSetStandby              = 0x80
	OpSetRx                   = 0x82
	OpSetTx                   = 0x83
	OpSetSleep                = 0x84
	OpSetRfFrequency          = 0x86
	OpSetCadParams            = 0x88
	OpSetPacketType           = 0x8A
	OpSetModulationParams     = 0x8B
	OpSetPacketParams         = 0x8C
	OpSetDioIrqParams         = 0x8D
	OpSetTxParams             = 0x8E
	OpSetBufferBaseAddress    = 0x8F
	OpSetRxDutyCycle          = 0x94
	OpSetRegulatorMode        = 0x96
	OpClrIrqStatus            = 0x97
	OpSetAutoTx               = 0x98
	OpSetAdvancedRanging      = 0x9A
	OpSetLongPreamble         = 0x9B
	OpSetAutoFS               = 0x9E
	OpSetRangingRole          = 0xA3
	OpGetStatus               = 0xC0
	OpSetFs                   = 0xC1
	OpSetCad                  = 0xC5
	OpSetTxContinuousWave     = 0xD1
	OpSetTxContinuousPreamble = 0xD2
	OpSetSaveContext          = 0xD5
)

// Crystal reference used by SetRfFrequency: f = v * 52 MHz / 2^18
const (
	xtalFreqMHz  = 52
	pllStepShift = 18
)

// Output power offset for SetTxParams (register value 0 is -18 dBm)
const txPowerOffset = 18

// Displayed for a sub-field whose raw value matches no table entry
const fieldError = "ERROR"

// Event kinds produced by the Saleae SPI analyzer
const (
	EventEnable  EventKind = "enable"
	EventResult  EventKind = "result"
	EventDisable EventKind = "disable"
	EventError   EventKind = "error"
)

// Diagnostic texts
const (
	busErrorMessage        = "The clock was in the wrong state when the enable signal transitioned to active"
	unexpectedEventMessage = "Unexpected frame type from input analyzer: %s"
)
