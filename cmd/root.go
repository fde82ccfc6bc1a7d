// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Decoder flags
	packetTypeName string
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:   "sxscope",
	Short: "SX128x SPI Command Analyzer",
	Long: `sxscope - A CLI tool for decoding the SPI command traffic between a host
controller and an SX128x 2.4 GHz radio.

Transactions are decoded offline from logic analyzer captures, or live from a
sniffer bridge streaming bus events over serial or WebSocket.

Connection modes (live commands):
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the SXSCOPE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Captures that begin after the radio was configured can be decoded with
--packet-type so packet-type dependent commands render correctly.`,
	Version: "1.0.0",
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Decoder flags
	rootCmd.PersistentFlags().StringVar(&packetTypeName, "packet-type", "", "Initial packet type (gfsk, lora, ranging, flrc, ble)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log decoder diagnostics to stderr")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the diagnostics logger. Quiet runs only report warnings
// such as discarded transactions.
func newLogger() *zap.Logger {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newAnalyzer creates an analyzer honoring --packet-type
func newAnalyzer(logger *zap.Logger) (*sx128x.Analyzer, error) {
	pt, err := sx128x.ParsePacketType(packetTypeName)
	if err != nil {
		return nil, err
	}
	return sx128x.NewAnalyzer(sx128x.WithLogger(logger), sx128x.WithPacketType(pt)), nil
}
