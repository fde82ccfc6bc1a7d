// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"strings"
	"testing"
)

// decodeOne runs a single transaction through a fresh analyzer
func decodeOne(t *testing.T, pt PacketType, mosi, miso []byte) *Result {
	t.Helper()
	results := NewAnalyzer(WithPacketType(pt)).DecodeAll(transaction(0, mosi, miso))
	if len(results) != 1 {
		t.Fatalf("expected 1 record, got %d", len(results))
	}
	return results[0]
}

func anomalyTypes(errs []ValidationError) []AnomalyType {
	types := make([]AnomalyType, len(errs))
	for i, e := range errs {
		types[i] = e.Type
	}
	return types
}

func TestValidateResult_Clean(t *testing.T) {
	r := decodeOne(t, PacketTypeLoRa, []byte{0x8B, 0x70, 0x18, 0x01}, nil)
	if errs := ValidateResult(r); len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", anomalyTypes(errs))
	}
}

func TestValidateResult_Transactions(t *testing.T) {
	tests := []struct {
		name  string
		state PacketType
		mosi  []byte
		want  []AnomalyType
	}{
		{"unsupported opcode", PacketTypeGFSK, []byte{0x42}, []AnomalyType{AnomalyUnknownCommand}},
		{"empty", PacketTypeGFSK, nil, []AnomalyType{AnomalyUnknownCommand}},
		{"truncated", PacketTypeGFSK, []byte{0x86, 0xB8}, []AnomalyType{AnomalyLengthMismatch}},
		{"field errors", PacketTypeGFSK, []byte{0x8B, 0x01, 0x00, 0x00}, []AnomalyType{AnomalyFieldError, AnomalyFieldError}},
		{"undefined packet type", PacketTypeUndefined, []byte{0x8B, 0x01, 0x02, 0x03}, []AnomalyType{AnomalyUndefinedPacketType}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := decodeOne(t, tt.state, tt.mosi, nil)
			got := anomalyTypes(ValidateResult(r))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("anomaly %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestValidateResult_TruncatedMessage(t *testing.T) {
	r := decodeOne(t, PacketTypeGFSK, []byte{0x15, 0, 0}, nil)
	errs := ValidateResult(r)
	if len(errs) != 1 || errs[0].Type != AnomalyLengthMismatch {
		t.Fatalf("got %v", anomalyTypes(errs))
	}
	if !strings.HasPrefix(errs[0].Message, "GetIrqStatus too short") {
		t.Errorf("Message = %q", errs[0].Message)
	}
	if errs[0].Details["minimumMosi"] != 4 {
		t.Errorf("Details = %v", errs[0].Details)
	}
}

func TestValidateResult_DirectionMismatch(t *testing.T) {
	r := &Result{
		Kind:     ResultTransaction,
		Outgoing: []byte{0x80, 0x00},
		Incoming: []byte{0x00},
	}
	errs := ValidateResult(r)
	if len(errs) != 1 || errs[0].Type != AnomalyLengthMismatch {
		t.Errorf("got %v", anomalyTypes(errs))
	}
}

func TestValidateResult_ErrorRecords(t *testing.T) {
	tests := []struct {
		reason ErrorReason
		want   AnomalyType
	}{
		{ReasonInvalidTransaction, AnomalyInvalidTransaction},
		{ReasonBusError, AnomalyBusError},
		{ReasonUnexpectedEvent, AnomalyUnexpectedEvent},
	}

	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			r := errorResult(tt.reason, 0, 1, "boom")
			errs := ValidateResult(r)
			if len(errs) != 1 || errs[0].Type != tt.want {
				t.Fatalf("got %v", anomalyTypes(errs))
			}
			if errs[0].Error() != "boom" {
				t.Errorf("Error() = %q", errs[0].Error())
			}
		})
	}
}

func TestAnomalyType_String(t *testing.T) {
	if AnomalyFieldError.String() != "FIELD_ERROR" {
		t.Errorf("got %q", AnomalyFieldError)
	}
	if AnomalyType(99).String() != "ANOMALY_99" {
		t.Errorf("got %q", AnomalyType(99))
	}
}
