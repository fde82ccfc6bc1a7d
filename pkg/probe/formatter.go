// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
)

// FormatPacket formats a link packet into a human-readable line
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) seq=%d len=%d", timestamp, FormatMessageType(p.Type()), p.Type(), p.seq, p.length)

	switch p.Type() {
	case MsgBusEvent:
		if ev, err := p.Event(); err == nil {
			result += " " + FormatEvent(ev)
		}
	case MsgBridgeStatus:
		if s, err := p.Status(); err == nil {
			result += fmt.Sprintf(" firmware=%q spi_clock=%d Hz dropped=%d uptime=%d ms", s.Firmware, s.SPIClock, s.Dropped, s.Uptime)
		}
	case MsgPingResponse:
		if r, err := p.Ping(); err == nil {
			result += fmt.Sprintf(" uptime=%d ms", r.Uptime)
		}
	}

	if err := p.ParseError(); err != nil {
		result += fmt.Sprintf(" [parse error: %v]", err)
	}
	return result + "\n"
}

// FormatEvent formats a bus event as it arrived from the analyzer
func FormatEvent(ev sx128x.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s @%s", ev.Kind, sx128x.FormatTime(ev.Start))
	if len(ev.MOSI) > 0 || len(ev.MISO) > 0 {
		fmt.Fprintf(&sb, " mosi=[% x] miso=[% x]", ev.MOSI, ev.MISO)
	}
	return sb.String()
}

// FormatMessageType returns the human-readable name for a message type
func FormatMessageType(msgType uint8) string {
	switch msgType {
	case MsgBusEvent:
		return "BUS_EVENT"
	case MsgBridgeStatus:
		return "BRIDGE_STATUS"
	case MsgPingResponse:
		return "PING_RESPONSE"
	case MsgCaptureStart:
		return "CAPTURE_START"
	case MsgCaptureStop:
		return "CAPTURE_STOP"
	case MsgPingRequest:
		return "PING_REQUEST"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", msgType)
	}
}
