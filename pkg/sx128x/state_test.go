// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import "testing"

func TestNewProtocolState(t *testing.T) {
	if got := NewProtocolState().PacketType(); got != PacketTypeUndefined {
		t.Errorf("initial packet type = %s, want UNDEFINED", got)
	}
}

func TestProtocolState_ZeroValue(t *testing.T) {
	var st ProtocolState
	if got := st.PacketType(); got != PacketTypeUndefined {
		t.Fatalf("zero value packet type = %s, want UNDEFINED", got)
	}

	// GFSK is wire code 0x00; an unset state must not read as GFSK
	cmd := Decode([]byte{0x1D, 0, 0, 0, 0, 0, 0}, make([]byte, 7), &st)
	if cmd.Text != "GetPacketStatus()=UNDEFINED protocol" {
		t.Errorf("zero value state decoded %q", cmd.Text)
	}

	st.SetPacketType(PacketTypeGFSK)
	if got := st.PacketType(); got != PacketTypeGFSK {
		t.Errorf("after SetPacketType(GFSK) got %s", got)
	}
}

func TestPacketTypeCodes(t *testing.T) {
	tests := []struct {
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

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt, ok := PacketTypeFromCode(tt.code)
			if !ok || pt != tt.typ {
				t.Errorf("PacketTypeFromCode(0x%02X) = %s, %v", tt.code, pt, ok)
			}
			if pt.Code() != tt.code {
				t.Errorf("Code() = 0x%02X, want 0x%02X", pt.Code(), tt.code)
			}
			if pt.String() != tt.name {
				t.Errorf("String() = %q, want %q", pt.String(), tt.name)
			}
		})
	}
}

func TestPacketTypeFromCode_Unknown(t *testing.T) {
	for _, code := range []byte{0x05, 0x10, 0xFE, 0xFF} {
		pt, ok := PacketTypeFromCode(code)
		if ok {
			t.Errorf("code 0x%02X should not match", code)
		}
		if pt != PacketTypeUndefined {
			t.Errorf("code 0x%02X: got %s, want UNDEFINED", code, pt)
		}
	}
	if PacketType(0x42).String() != "UNDEFINED" {
		t.Errorf("unknown packet types should print as UNDEFINED")
	}
}

func TestParsePacketType(t *testing.T) {
	tests := []struct {
		input   string
		want    PacketType
		wantErr bool
	}{
		{"lora", PacketTypeLoRa, false},
		{"LoRa", PacketTypeLoRa, false},
		{" GFSK ", PacketTypeGFSK, false},
		{"ranging", PacketTypeRanging, false},
		{"flrc", PacketTypeFLRC, false},
		{"BLE", PacketTypeBLE, false},
		{"undefined", PacketTypeUndefined, false},
		{"", PacketTypeUndefined, false},
		{"ook", PacketTypeUndefined, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePacketType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProtocolState_SetPacketType(t *testing.T) {
	s := NewProtocolState()
	s.SetPacketType(PacketTypeBLE)
	if s.PacketType() != PacketTypeBLE {
		t.Errorf("got %s, want BLE", s.PacketType())
	}
	s.SetPacketType(PacketTypeUndefined)
	if s.PacketType() != PacketTypeUndefined {
		t.Errorf("got %s, want UNDEFINED", s.PacketType())
	}
}
