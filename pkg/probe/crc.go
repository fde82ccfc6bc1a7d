// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package probe

// crcTable holds CRC-16-CCITT remainders for every leading byte
var crcTable = func() (t [256]uint16) {
	for i := range t {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CalculateCRC computes the CRC-16-CCITT checksum (poly 0x1021, init 0xFFFF)
func CalculateCRC(data []byte) uint16 {
	return updateCRC(crcInitial, data)
}

func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
