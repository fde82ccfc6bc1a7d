// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"
	"strconv"
	"strings"
)

// Modulation parameter text follows the established annotation format:
// the spreading factor is labelled SP, and the GFSK, BLE and FLRC fields
// after the bandwidth are not comma separated.
//
// LoRa and Ranging modulation tables. Ranging supports neither SF11/SF12
// nor the 203.125 kHz bandwidth.
var (
	spreadingFactors = map[byte]string{
		0x50: "5", 0x60: "6", 0x70: "7", 0x80: "8", 0x90: "9", 0xA0: "10",
	}
	spreadingFactorsLoRaOnly = map[byte]string{
		0xB0: "11", 0xC0: "12",
	}
	loraBandwidths = map[byte]string{
		0x0A: "1625.0", 0x18: "812.5", 0x26: "406.25",
	}
	loraBandwidthsLoRaOnly = map[byte]string{
		0x34: "203.125",
	}
	loraCodingRates = map[byte]string{
		0x01: "4/5", 0x02: "4/6", 0x03: "4/7", 0x04: "4/8",
		0x05: "4/5*", 0x06: "4/6*", 0x07: "4/8*",
	}
)

// bitrateBandwidth is a joint bit rate (Mb/s) and bandwidth (MHz) setting
type bitrateBandwidth struct {
	bitrate   string
	bandwidth string
}

// GFSK and BLE modulation tables
var (
	gfskBitrates = map[byte]bitrateBandwidth{
		0x04: {"2", "2.4"},
		0x28: {"1.6", "2.4"},
		0x4C: {"1", "2.4"},
		0x45: {"1", "1.2"},
		0x70: {"0.8", "2.4"},
		0x69: {"0.8", "1.2"},
		0x8D: {"0.5", "1.2"},
		0x86: {"0.5", "0.6"},
		0xB1: {"0.4", "1.2"},
		0xAA: {"0.4", "0.6"},
		0xCE: {"0.25", "0.6"},
		0xC7: {"0.25", "0.3"},
		0xEF: {"0.125", "0.3"},
	}
	modulationIndexes = map[byte]string{
		0x00: "0.35", 0x01: "0.5", 0x02: "0.75", 0x03: "1",
		0x04: "1.25", 0x05: "1.5", 0x06: "1.75", 0x07: "2",
		0x08: "2.25", 0x09: "2.5", 0x0A: "2.75", 0x0B: "3",
		0x0C: "3.25", 0x0D: "3.5", 0x0E: "3.75", 0x0F: "4",
	}
	filterBT = map[byte]string{
		0x00: "No filtering", 0x10: "1", 0x20: "0.5",
	}
)

// FLRC modulation tables
var (
	flrcBitrates = map[byte]bitrateBandwidth{
		0x45: {"1.3", "1.2"},
		0x69: {"1.04", "1.2"},
		0x86: {"0.65", "0.6"},
		0xAA: {"0.52", "0.6"},
		0xC7: {"0.325", "0.3"},
		0xEB: {"0.26", "0.3"},
	}
	flrcCodingRates = map[byte]string{
		0x00: "1/2", 0x02: "3/4", 0x04: "1",
	}
)

func decodeSetModulationParams(c *Command, out, _ []byte, st *ProtocolState) string {
	p1, p2, p3 := out[1], out[2], out[3]
	var params string
	switch pt := st.PacketType(); pt {
	case PacketTypeLoRa, PacketTypeRanging:
		params = pt.String() + ":" + loraModulation(c, pt, p1, p2, p3)
	case PacketTypeGFSK, PacketTypeBLE:
		params = pt.String() + ":" + gfskModulation(c, p1, p2, p3)
	case PacketTypeFLRC:
		params = pt.String() + ":" + flrcModulation(c, p1, p2, p3)
	default:
		params = hexValue(p1) + "," + hexValue(p2) + "," + hexValue(p3)
	}
	return "SetModulationParams(" + params + ")"
}

func loraModulation(c *Command, pt PacketType, sf, bw, cr byte) string {
	sfText, ok := spreadingFactors[sf]
	if !ok && pt == PacketTypeLoRa {
		sfText, ok = spreadingFactorsLoRaOnly[sf]
	}
	if !ok {
		sfText = c.fieldError("SP")
	}

	bwText, ok := loraBandwidths[bw]
	if !ok && pt == PacketTypeLoRa {
		bwText, ok = loraBandwidthsLoRaOnly[bw]
	}
	if ok {
		bwText += " kHz"
	} else {
		bwText = c.fieldError("BW")
	}

	return "SP=" + sfText + ",BW=" + bwText + ",CR=" + c.lookup("CR", loraCodingRates, cr)
}

func gfskModulation(c *Command, brbw, mi, bt byte) string {
	br, bw := fieldError, fieldError
	if v, ok := gfskBitrates[brbw]; ok {
		br, bw = v.bitrate, v.bandwidth
	} else {
		c.fieldError("BR")
		c.fieldError("BW")
	}
	return fmt.Sprintf("BR=%s,BW=%sMI=%sBT=%s", br, bw,
		c.lookup("MI", modulationIndexes, mi), c.lookup("BT", filterBT, bt))
}

func flrcModulation(c *Command, brbw, cr, bt byte) string {
	br, bw := fieldError, fieldError
	if v, ok := flrcBitrates[brbw]; ok {
		br, bw = v.bitrate, v.bandwidth
	} else {
		c.fieldError("BR")
		c.fieldError("BW")
	}

	crText, ok := flrcCodingRates[cr]
	switch {
	case ok:
	case cr == 0x03 || cr >= 0x05:
		crText = "Reserved"
	default:
		crText = c.fieldError("CR")
	}
	return fmt.Sprintf("BR=%s,BW=%sCR=%sBT=%s", br, bw, crText, c.lookup("BT", filterBT, bt))
}

func decodeSetPacketParams(_ *Command, out, _ []byte, st *ProtocolState) string {
	p := out[1:8]
	var params string
	switch pt := st.PacketType(); pt {
	case PacketTypeGFSK, PacketTypeFLRC:
		params = fmt.Sprintf("%s:PreLen=%d,SWLen=%d,SWM=%s,HT=%s,PayLen=%d,CLen=%d,WH=%s",
			pt, p[0], p[1], hexValue(p[2]), hexValue(p[3]), p[4], p[5], hexValue(p[6]))
	case PacketTypeBLE:
		params = fmt.Sprintf("%s:CS=%s,CLen=%d,BTP=%s,WH=%s",
			pt, hexValue(p[0]), p[1], hexValue(p[2]), hexValue(p[3]))
	case PacketTypeLoRa, PacketTypeRanging:
		params = fmt.Sprintf("%s:PreLen=%d,HT=%s,PayLen=%d,CRC=%s,Invert=%s",
			pt, p[0], hexValue(p[1]), p[2], hexValue(p[3]), hexValue(p[4]))
	default:
		params = hexList(p)
	}
	return "SetPacketParams(" + params + ")"
}

func decodeGetPacketStatus(_ *Command, _, in []byte, st *ProtocolState) string {
	var sb strings.Builder
	sb.WriteString("GetPacketStatus()=")
	switch pt := st.PacketType(); pt {
	case PacketTypeGFSK, PacketTypeBLE, PacketTypeFLRC:
		fmt.Fprintf(&sb, "%s:RFU=%s, rssiSync=%s dBm, errors=%s, status=%s, , %s",
			pt, hexValue(in[2]), formatRSSI(in[3]), hexValue(in[4]), hexValue(in[5]), syncAddress(in[6]))
	case PacketTypeLoRa, PacketTypeRanging:
		fmt.Fprintf(&sb, "%s:rssiSync=%s dBm, snr=%s dB",
			pt, formatRSSI(in[2]), formatFloat(float64(in[3])/4))
	default:
		sb.WriteString("UNDEFINED protocol")
	}
	return sb.String()
}

// syncAddress decodes the sync word detection result (low 2 bits)
func syncAddress(sync byte) string {
	n := sync & 0x03
	if n == 0 {
		return "SyncAddrDetection Error"
	}
	return "SyncAddr " + strconv.Itoa(int(n)) + " detected"
}
