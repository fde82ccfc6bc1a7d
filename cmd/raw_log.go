// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/Thermoquad/sxscope/pkg/capture"
	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/spf13/cobra"
)

var (
	rawLogRecord string
	rawLogEvents bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Decode live bus traffic in human-readable format",
	Long: `Continuously decode and display SX128x transactions as the sniffer bridge
streams them.

Each completed transaction is printed with its capture time span and decoded
command. Bridge status and ping packets are printed as they arrive.

Use --record to save the raw bus events to a CBOR event log that the decode
command can read back later.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Save bus events to a CBOR event log")
	rawLogCmd.Flags().BoolVar(&rawLogEvents, "events", false, "Also print every bus event")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	analyzer, err := newAnalyzer(logger)
	if err != nil {
		return err
	}

	var recorder *capture.LogWriter
	if rawLogRecord != "" {
		f, err := os.Create(rawLogRecord)
		if err != nil {
			return fmt.Errorf("failed to create event log: %w", err)
		}
		defer f.Close()
		recorder = capture.NewLogWriter(f)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("sxscope - Raw Transaction Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if recorder != nil {
		fmt.Printf("Recording: %s\n", rawLogRecord)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = pumpLink(conn, probe.NewDecoder(), func(packet *probe.Packet, decodeErr error) {
		if decodeErr != nil {
			fmt.Printf("[ERROR] %v\n", decodeErr)
			return
		}
		if packet.Type() != probe.MsgBusEvent {
			fmt.Print(probe.FormatPacket(packet))
			return
		}

		ev, err := packet.Event()
		if err != nil {
			fmt.Printf("[ERROR] seq=%d: %v\n", packet.Seq(), err)
			return
		}
		if rawLogEvents {
			fmt.Print(probe.FormatPacket(packet))
		}
		if recorder != nil {
			if err := recorder.Write(ev); err != nil {
				log.Printf("Record error: %v", err)
			}
		}
		if r := analyzer.Decode(ev); r != nil {
			fmt.Println(sx128x.FormatResult(r))
		}
	})

	if recorder != nil {
		fmt.Printf("Recorded %d events to %s\n", recorder.Count(), rawLogRecord)
	}
	return err
}
