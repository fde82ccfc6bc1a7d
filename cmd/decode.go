// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/sxscope/pkg/capture"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/spf13/cobra"
)

var (
	digitalFiles capture.DigitalFiles

	decodeErrorsOnly bool
	decodeStats      bool
	decodeExport     string
)

var decodeCmd = &cobra.Command{
	Use:   "decode [capture]",
	Short: "Decode a recorded capture",
	Long: `Decode SX128x transactions from a recorded capture.

Supported captures:
  Logic 2 SPI analyzer table export (.csv)
  sxscope event log (.cbor), as written by raw_log --record
  Saleae digital channel exports, one .bin per signal:
    --clk clock.bin --cs enable.bin --mosi mosi.bin --miso miso.bin

With --errors-only, only records that fail validation are printed, each
followed by the anomalies found. --stats prints a summary at the end.

--export converts the capture into an event log, so digital and CSV
captures can be archived in one compact format.

Examples:
  sxscope decode capture.csv
  sxscope decode --packet-type lora --errors-only session.cbor
  sxscope decode --clk d0.bin --cs d1.bin --mosi d2.bin --miso d3.bin --export session.cbor`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&digitalFiles.Clock, "clk", "", "Saleae digital export of the SPI clock")
	decodeCmd.Flags().StringVar(&digitalFiles.Enable, "cs", "", "Saleae digital export of chip select")
	decodeCmd.Flags().StringVar(&digitalFiles.MOSI, "mosi", "", "Saleae digital export of MOSI")
	decodeCmd.Flags().StringVar(&digitalFiles.MISO, "miso", "", "Saleae digital export of MISO")
	decodeCmd.Flags().BoolVar(&decodeErrorsOnly, "errors-only", false, "Only print records that fail validation")
	decodeCmd.Flags().BoolVar(&decodeStats, "stats", false, "Print statistics after decoding")
	decodeCmd.Flags().StringVar(&decodeExport, "export", "", "Write the capture's bus events to a CBOR event log")
}

func runDecode(cmd *cobra.Command, args []string) error {
	events, source, err := loadCapture(args)
	if err != nil {
		return err
	}

	if decodeExport != "" {
		if err := exportEvents(decodeExport, events); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported %d events to %s\n", len(events), decodeExport)
	}

	logger := newLogger()
	defer logger.Sync()

	analyzer, err := newAnalyzer(logger)
	if err != nil {
		return err
	}

	fmt.Printf("sxscope - %s (%d events)\n\n", source, len(events))
	stats := decodeEvents(os.Stdout, analyzer, events, decodeErrorsOnly)

	if n := analyzer.Discarded(); n > 0 {
		fmt.Printf("\n%d unterminated transactions discarded\n", n)
	}
	if decodeStats {
		fmt.Println()
		fmt.Print(stats.String())
	}
	return nil
}

// loadCapture reads the capture named by the arguments or the digital
// channel flags and describes its source
func loadCapture(args []string) ([]sx128x.Event, string, error) {
	if digitalFiles != (capture.DigitalFiles{}) {
		if len(args) > 0 {
			return nil, "", fmt.Errorf("give either a capture file or --clk/--cs/--mosi/--miso, not both")
		}
		if digitalFiles.Clock == "" || digitalFiles.Enable == "" || digitalFiles.MOSI == "" || digitalFiles.MISO == "" {
			return nil, "", fmt.Errorf("digital captures need all of --clk, --cs, --mosi and --miso")
		}
		events, err := capture.LoadDigital(digitalFiles)
		if err != nil {
			return nil, "", err
		}
		return events, fmt.Sprintf("%s (%s)", digitalFiles.Enable, capture.FormatDigital), nil
	}

	if len(args) == 0 {
		return nil, "", fmt.Errorf("no capture given")
	}
	events, err := capture.Load(args[0])
	if err != nil {
		return nil, "", err
	}
	return events, fmt.Sprintf("%s (%s)", args[0], capture.DetectFormat(args[0])), nil
}

func exportEvents(path string, events []sx128x.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create event log: %w", err)
	}
	if err := capture.WriteCBOR(f, events); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// decodeEvents runs events through analyzer, printing records to w, and
// returns the statistics of the run
func decodeEvents(w io.Writer, analyzer *sx128x.Analyzer, events []sx128x.Event, errorsOnly bool) *sx128x.Statistics {
	stats := sx128x.NewStatistics()
	for _, ev := range events {
		r := analyzer.Decode(ev)
		if r == nil {
			continue
		}

		validationErrors := sx128x.ValidateResult(r)
		stats.Update(r, validationErrors)

		if errorsOnly && len(validationErrors) == 0 {
			continue
		}
		fmt.Fprintln(w, sx128x.FormatResult(r))
		if errorsOnly {
			for i, verr := range validationErrors {
				fmt.Fprintf(w, "  Issue %d: %s: %s\n", i+1, verr.Type, verr.Message)
			}
		}
	}
	stats.CalculateRates()
	return stats
}
