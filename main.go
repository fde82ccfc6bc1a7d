// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// sxscope - SX128x SPI Command Analyzer
//
// A CLI tool for decoding the SPI command traffic of SX128x radios from
// logic analyzer captures or a live sniffer bridge.

package main

import (
	"os"

	"github.com/Thermoquad/sxscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
