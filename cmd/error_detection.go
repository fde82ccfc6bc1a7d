// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed transactions and errors",
	Long: `Track bus errors, malformed transactions and decode anomalies with statistics.

Each decoded record is validated, detecting:
  - Invalid transactions and bus errors reported by the analyzer
  - Unknown opcodes and transactions too short for their opcode
  - Sub-fields with values the radio does not define
  - Packet-type dependent commands sent before the packet type was known
  - Probe link CRC errors, decode failures and lost events

By default, only errors are displayed. Use --show-all to display clean
transactions too.

Records are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals. The TUI
reconnects automatically and can start or stop the bridge capture.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all transactions (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	if useTUI {
		return runTUIMode()
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	return runTextMode(conn, connInfo)
}

// printLinkError prints a probe link error in highlighted format
func printLinkError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	label := "DECODE ERROR"
	if errors.Is(err, probe.ErrCRCMismatch) {
		label = "CRC ERROR"
	}
	fmt.Printf("[%s] \033[1;31m%s:\033[0m %v\n", timestamp, label, err)
	fmt.Printf("  >>> FRAME DROPPED <<<\n\n")
}

// printBridgeStatus prints a bridge status report
func printBridgeStatus(s *probe.BridgeStatus) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;32mBRIDGE_STATUS:\033[0m firmware %s, SPI clock %d Hz, %d events dropped, uptime %s\n\n",
		timestamp, s.Firmware, s.SPIClock, s.Dropped, formatUptime(s.Uptime))
}

// printPingResponse prints a ping response with uptime
func printPingResponse(r *probe.PingResponse) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;32mPING_RESPONSE:\033[0m Bridge uptime: %s\n\n", timestamp, formatUptime(r.Uptime))
}

// printValidationErrors prints a flagged record and its anomalies
func printValidationErrors(r *sx128x.Result, validationErrors []sx128x.ValidationError) {
	timestamp := time.Now().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s\n", timestamp, sx128x.FormatResult(r))

	for i, err := range validationErrors {
		switch err.Type {
		case sx128x.AnomalyInvalidTransaction, sx128x.AnomalyBusError, sx128x.AnomalyUnexpectedEvent:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Type)

		case sx128x.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if minOut, ok := err.Details["minimumMosi"].(int); ok {
				if minIn, ok := err.Details["minimumMiso"].(int); ok {
					fmt.Printf("    Minimum: mosi=%d, miso=%d\n", minOut, minIn)
				}
			}

		case sx128x.AnomalyFieldError:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case sx128x.AnomalyUndefinedPacketType:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    (use --packet-type if the capture started after configuration)\n")

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	if r.Kind == sx128x.ResultTransaction {
		fmt.Printf("  MOSI: [% X]\n", r.Outgoing)
		fmt.Printf("  MISO: [% X]\n", r.Incoming)
	}
	fmt.Printf("  >>> TRANSACTION FLAGGED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode() error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	// Logging to stderr would draw over the alternate screen
	analyzer, err := newAnalyzer(zap.NewNop())
	if err != nil {
		conn.Close()
		return err
	}

	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
		monitor:  newLinkMonitor(analyzer),
	}

	m := initialModel(cm, connInfo, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.readerLoop()

	_, err = p.Run()
	close(cm.done)
	cm.getConn().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("sxscope - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All transactions\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	logger := newLogger()
	defer logger.Sync()

	analyzer, err := newAnalyzer(logger)
	if err != nil {
		return err
	}
	monitor := newLinkMonitor(analyzer)
	stats := sx128x.NewStatistics()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking reads; closed when the connection is gone
	linkData := make(chan []byte, 10)
	go func() {
		defer close(linkData)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if errors.Is(err, ErrConnectionClosed) {
					return
				}
				log.Printf("Read error: %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			linkData <- data
		}
	}()

	for {
		select {
		case data, ok := <-linkData:
			if !ok {
				log.Printf("Connection closed")
				fmt.Println()
				fmt.Print(stats.String())
				return nil
			}
			monitor.feed(data, func(u linkUpdate) {
				printTextUpdate(stats, u)
			})

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

func printTextUpdate(stats *sx128x.Statistics, u linkUpdate) {
	if u.synced {
		if u.skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", u.skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}
	if u.lost > 0 {
		fmt.Printf("[LINK] \033[1;31m%d bus events lost\033[0m (sequence gap)\n\n", u.lost)
	}

	switch {
	case u.linkErr != nil:
		stats.RecordLinkError(errors.Is(u.linkErr, probe.ErrCRCMismatch))
		printLinkError(u.linkErr)

	case u.result != nil:
		stats.Update(u.result, u.validationErrors)
		if len(u.validationErrors) > 0 {
			printValidationErrors(u.result, u.validationErrors)
		} else if showAll {
			fmt.Println(sx128x.FormatResult(u.result))
		}

	case u.status != nil:
		printBridgeStatus(u.status)

	case u.ping != nil:
		// Always print ping responses (for debugging)
		printPingResponse(u.ping)
	}
}
