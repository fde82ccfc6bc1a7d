// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/sxscope/pkg/replay"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/physic"
)

var (
	replaySPI   string
	replaySpeed string
	replayBusy  string
	replayGap   time.Duration
	replayDiffs bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [capture]",
	Short: "Replay a capture's host commands onto a real radio",
	Long: `Send the host side of every clean transaction in a capture to an SX128x
on a Linux spidev port and decode what the radio answers.

Each line shows the captured decode next to the live one. Write-only commands
match when they were sent intact; reads show how the radio under test differs
from the captured one.

The capture is given as for decode (a .csv or .cbor file, or the digital
channel flags). --busy names the GPIO wired to the radio's BUSY pin; without
it transactions are sent back to back after --gap.

Examples:
  sxscope replay --spi /dev/spidev0.0 --busy GPIO24 session.cbor
  sxscope replay --spi SPI0.0 --speed 2MHz --gap 1ms --diffs capture.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replaySPI, "spi", "/dev/spidev0.0", "SPI port the radio is attached to")
	replayCmd.Flags().StringVar(&replaySpeed, "speed", "8MHz", "SPI clock")
	replayCmd.Flags().StringVar(&replayBusy, "busy", "", "GPIO connected to the radio BUSY pin")
	replayCmd.Flags().DurationVar(&replayGap, "gap", 0, "Pause between transactions")
	replayCmd.Flags().BoolVar(&replayDiffs, "diffs", false, "Only print transactions whose live decode differs")
	replayCmd.Flags().StringVar(&digitalFiles.Clock, "clk", "", "Saleae digital export of the SPI clock")
	replayCmd.Flags().StringVar(&digitalFiles.Enable, "cs", "", "Saleae digital export of chip select")
	replayCmd.Flags().StringVar(&digitalFiles.MOSI, "mosi", "", "Saleae digital export of MOSI")
	replayCmd.Flags().StringVar(&digitalFiles.MISO, "miso", "", "Saleae digital export of MISO")
}

func runReplay(cmd *cobra.Command, args []string) error {
	var speed physic.Frequency
	if err := speed.Set(replaySpeed); err != nil {
		return fmt.Errorf("invalid --speed: %w", err)
	}

	events, source, err := loadCapture(args)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	analyzer, err := newAnalyzer(logger)
	if err != nil {
		return err
	}
	captured := analyzer.DecodeAll(events)
	startType, err := sx128x.ParsePacketType(packetTypeName)
	if err != nil {
		return err
	}

	dev, err := replay.Open(replaySPI, speed, replayBusy)
	if err != nil {
		return err
	}
	defer dev.Close()

	fmt.Printf("sxscope - Replay\n")
	fmt.Printf("Capture: %s (%d records)\n", source, len(captured))
	fmt.Printf("Radio: %s @ %s\n", replaySPI, speed)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	player := replay.NewPlayer(dev,
		replay.WithBusy(dev.Busy()),
		replay.WithGap(replayGap),
		replay.WithLogger(logger),
		replay.WithPacketType(startType),
	)
	steps, err := player.Replay(ctx, captured)

	matches := 0
	for _, step := range steps {
		if step.Match() {
			matches++
			if replayDiffs {
				continue
			}
			fmt.Printf("[%s]   %s\n", sx128x.FormatTime(step.Captured.Start), step.Captured.Text)
			continue
		}
		live := "(no response)"
		if step.Live != nil {
			live = step.Live.Text
		}
		fmt.Printf("[%s] \033[1;33m≠\033[0m %s\n", sx128x.FormatTime(step.Captured.Start), step.Captured.Text)
		fmt.Printf("               live: %s\n", live)
	}

	fmt.Printf("\n--- Replay summary ---\n")
	fmt.Printf("%d transactions sent, %d matched, %d differed\n", len(steps), matches, len(steps)-matches)

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("replay stopped: %w", err)
	}
	return nil
}
