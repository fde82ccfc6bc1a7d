// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import "fmt"

// AnomalyType represents different kinds of transaction anomalies
type AnomalyType int

const (
	AnomalyInvalidTransaction AnomalyType = iota
	AnomalyBusError
	AnomalyUnexpectedEvent
	AnomalyUnknownCommand
	AnomalyFieldError
	AnomalyUndefinedPacketType
	AnomalyLengthMismatch
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyInvalidTransaction:
		return "INVALID_TRANSACTION"
	case AnomalyBusError:
		return "BUS_ERROR"
	case AnomalyUnexpectedEvent:
		return "UNEXPECTED_EVENT"
	case AnomalyUnknownCommand:
		return "UNKNOWN_COMMAND"
	case AnomalyFieldError:
		return "FIELD_ERROR"
	case AnomalyUndefinedPacketType:
		return "UNDEFINED_PACKET_TYPE"
	case AnomalyLengthMismatch:
		return "LENGTH_MISMATCH"
	default:
		return fmt.Sprintf("ANOMALY_%d", int(a))
	}
}

// ValidationError represents a result that decoded with an anomaly
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateResult checks a result record for anomalies
// Returns a slice of validation errors (empty if the transaction is clean)
func ValidateResult(r *Result) []ValidationError {
	errors := []ValidationError{}

	if r.Kind == ResultError {
		return append(errors, validateErrorRecord(r))
	}

	if len(r.Outgoing) != len(r.Incoming) {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("MOSI/MISO length mismatch (%d/%d bytes)", len(r.Outgoing), len(r.Incoming)),
			Details: map[string]interface{}{"mosi": len(r.Outgoing), "miso": len(r.Incoming)},
		})
	}

	cmd := r.Command
	if cmd == nil {
		return errors
	}

	if !cmd.Known {
		errors = append(errors, validateUnknown(r))
		return errors
	}

	for _, field := range cmd.FieldErrors {
		errors = append(errors, ValidationError{
			Type:    AnomalyFieldError,
			Message: fmt.Sprintf("%s: unrecognized %s value", cmd.Name, field),
			Details: map[string]interface{}{"command": cmd.Name, "field": field},
		})
	}

	if cmd.DependsOnPacketType && cmd.PacketType == PacketTypeUndefined {
		errors = append(errors, ValidationError{
			Type:    AnomalyUndefinedPacketType,
			Message: fmt.Sprintf("%s decoded without a known packet type", cmd.Name),
			Details: map[string]interface{}{"command": cmd.Name},
		})
	}

	return errors
}

func validateErrorRecord(r *Result) ValidationError {
	t := AnomalyInvalidTransaction
	switch r.Reason {
	case ReasonBusError:
		t = AnomalyBusError
	case ReasonUnexpectedEvent:
		t = AnomalyUnexpectedEvent
	}
	return ValidationError{
		Type:    t,
		Message: r.Text,
		Details: map[string]interface{}{"start": r.Start, "end": r.End},
	}
}

// validateUnknown separates truncated known opcodes from unsupported ones
func validateUnknown(r *Result) ValidationError {
	if len(r.Outgoing) == 0 {
		return ValidationError{
			Type:    AnomalyUnknownCommand,
			Message: "empty transaction",
			Details: map[string]interface{}{"length": 0},
		}
	}

	opcode := r.Outgoing[0]
	if op, ok := opcodeIndex[opcode]; ok {
		return ValidationError{
			Type: AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s too short (MOSI %d/%d, MISO %d/%d bytes)",
				op.name, len(r.Outgoing), op.minOut, len(r.Incoming), op.minIn),
			Details: map[string]interface{}{
				"command":     op.name,
				"mosi":        len(r.Outgoing),
				"miso":        len(r.Incoming),
				"minimumMosi": op.minOut,
				"minimumMiso": op.minIn,
			},
		}
	}

	return ValidationError{
		Type:    AnomalyUnknownCommand,
		Message: fmt.Sprintf("unsupported opcode %s", hexValue(opcode)),
		Details: map[string]interface{}{"opcode": opcode},
	}
}
