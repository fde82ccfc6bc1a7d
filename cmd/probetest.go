// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	probeTestTimeout int
)

var probeTestCmd = &cobra.Command{
	Use:   "probe_test",
	Short: "Test the capture chain by waiting for a decoded transaction",
	Long: `Wait for one complete SX128x transaction on the connection until timeout.

This command connects to a serial port or WebSocket and decodes the bus
events the sniffer bridge streams. It ignores link errors and error records
and waits for a transaction that decodes cleanly.

Exit codes:
  0 - Transaction received before timeout
  1 - Timeout reached without receiving a transaction
  2 - Connection error

Useful for checking the probe wiring and the bridge link end to end.`,
	RunE: runProbeTest,
}

func init() {
	rootCmd.AddCommand(probeTestCmd)
	probeTestCmd.Flags().IntVar(&probeTestTimeout, "timeout", 10, "Timeout in seconds to wait for a transaction")
}

func runProbeTest(cmd *cobra.Command, args []string) error {
	analyzer, err := newAnalyzer(zap.NewNop())
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("sxscope - Probe Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTestTimeout)
	fmt.Printf("Waiting for a decoded transaction...\n\n")

	monitor := newLinkMonitor(analyzer)
	resultChan := make(chan *sx128x.Result, 1)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		skipped := 0
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			var found *sx128x.Result
			monitor.feed(buf[:n], func(u linkUpdate) {
				if u.synced && u.skipped > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", u.skipped)
				}
				if u.result == nil || found != nil {
					return
				}
				if u.result.Kind == sx128x.ResultTransaction && len(u.validationErrors) == 0 {
					found = u.result
				} else {
					skipped++
				}
			})
			if found != nil {
				if skipped > 0 {
					fmt.Printf("(skipped %d flagged records)\n", skipped)
				}
				resultChan <- found
				return
			}
		}
	}()

	select {
	case r := <-resultChan:
		fmt.Printf("SUCCESS: Decoded transaction\n")
		fmt.Printf("  Command: %s\n", r.Text)
		fmt.Printf("  Span: %s - %s s\n", sx128x.FormatTime(r.Start), sx128x.FormatTime(r.End))
		fmt.Printf("  MOSI: [% X]\n", r.Outgoing)
		fmt.Printf("  MISO: [% X]\n", r.Incoming)
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(probeTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No transaction decoded within %d seconds\n", probeTestTimeout)
		os.Exit(1)
	}

	return nil
}
