// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

// DigitalFiles names the Saleae binary export of each SPI signal
type DigitalFiles struct {
	Clock  string
	Enable string
	MOSI   string
	MISO   string
}

// Transfer is one chip-select span recovered from digital channels
type Transfer struct {
	Start float64 // seconds
	MOSI  []byte
	MISO  []byte
}

// LoadDigital runs the SPI analyzer over four digital channel files
func LoadDigital(files DigitalFiles) ([]sx128x.Event, error) {
	clock, err := openDigital(files.Clock)
	if err != nil {
		return nil, err
	}
	enable, err := openDigital(files.Enable)
	if err != nil {
		return nil, err
	}
	mosi, err := openDigital(files.MOSI)
	if err != nil {
		return nil, err
	}
	miso, err := openDigital(files.MISO)
	if err != nil {
		return nil, err
	}

	return scanTransfers(&analyzers.SPI{}, clock, enable, mosi, miso)
}

// spiScanner recovers SPI transactions from digital channels
type spiScanner interface {
	Scan(clk, enable, sdo, sdi *saleae.DigitalFile) ([]analyzers.TxSPI, error)
}

func scanTransfers(spi spiScanner, clock, enable, mosi, miso *saleae.DigitalFile) ([]sx128x.Event, error) {
	txs, err := spi.Scan(clock, enable, mosi, miso)
	if err != nil {
		return nil, fmt.Errorf("spi scan: %w", err)
	}

	transfers := make([]Transfer, len(txs))
	for i, tx := range txs {
		transfers[i] = Transfer{
			Start: tx.StartTime(),
			MOSI:  tx.SDO,
			MISO:  tx.SDI,
		}
	}
	return TransferEvents(transfers), nil
}

func openDigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open digital channel: %w", err)
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return df, nil
}

// TransferEvents expands transfers into enable/result/disable events.
// The digital analyzer only reports when a transfer starts, so each
// transaction is stamped with its start time; one result event carries
// all of its bytes.
func TransferEvents(transfers []Transfer) []sx128x.Event {
	events := make([]sx128x.Event, 0, len(transfers)*3)
	for _, tx := range transfers {
		t := time.Duration(math.Round(tx.Start * float64(time.Second)))
		events = append(events,
			sx128x.Event{Kind: sx128x.EventEnable, Start: t, End: t},
			sx128x.Event{Kind: sx128x.EventResult, Start: t, End: t, MOSI: tx.MOSI, MISO: tx.MISO},
			sx128x.Event{Kind: sx128x.EventDisable, Start: t, End: t},
		)
	}
	return events
}
