// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Assembler groups bus events into transactions bounded by chip-select
// assertion and deassertion, decoding each completed transaction against
// the shared ProtocolState.
//
// States: idle (no transaction open) and active (selected, buffering
// frames). A bus error flags the open transaction; it is still buffered
// until deselect and then reported as invalid.
type Assembler struct {
	state  *ProtocolState
	logger *zap.Logger

	frames   []Frame
	selected bool
	failed   bool
	start    time.Duration
	hasStart bool

	discarded int
}

// NewAssembler creates an idle assembler. A nil logger disables diagnostics.
func NewAssembler(state *ProtocolState, logger *zap.Logger) *Assembler {
	if state == nil {
		state = NewProtocolState()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		state:  state,
		logger: logger,
	}
}

// Select opens a transaction at ev.Start. A transaction that is still open
// is discarded without a record.
func (a *Assembler) Select(ev Event) {
	if a.selected {
		a.discarded++
		a.logger.Warn("discarding unterminated transaction",
			zap.Duration("start", a.start),
			zap.Duration("reselect", ev.Start),
			zap.Int("frames", len(a.frames)),
		)
	}
	a.frames = a.frames[:0]
	a.selected = true
	a.failed = false
	a.start = ev.Start
	a.hasStart = true
}

// Activity buffers a byte transfer. Transfers seen while idle are ignored.
func (a *Assembler) Activity(ev Event) {
	if !a.selected {
		a.logger.Debug("ignoring activity outside transaction", zap.Duration("time", ev.Start))
		return
	}
	a.frames = append(a.frames, Frame{
		Time:     ev.Start,
		Outgoing: ev.MOSI,
		Incoming: ev.MISO,
	})
}

// BusError flags the open transaction as failed and returns an error record
// for the event itself. The transaction stays open until Deselect.
func (a *Assembler) BusError(ev Event) *Result {
	a.failed = true
	a.logger.Debug("bus error", zap.Duration("time", ev.Start), zap.Bool("selected", a.selected))
	return errorResult(ReasonBusError, ev.Start, ev.End, busErrorMessage)
}

// Deselect closes the transaction and returns its record: the decoded
// command when the transaction is valid, an error record otherwise. The
// assembler is idle afterwards.
func (a *Assembler) Deselect(ev Event) *Result {
	defer a.reset()

	if !a.valid() {
		return errorResult(ReasonInvalidTransaction, ev.Start, ev.End, a.invalidMessage())
	}

	outgoing, incoming := BuildSequences(a.frames)
	cmd := Decode(outgoing, incoming, a.state)
	if !cmd.Known {
		a.logger.Debug("unknown command",
			zap.String("mosi", hexDump(outgoing)),
			zap.String("miso", hexDump(incoming)),
		)
	}
	return &Result{
		Kind:     ResultTransaction,
		Start:    a.start,
		End:      ev.End,
		Text:     cmd.Text,
		Command:  &cmd,
		Outgoing: outgoing,
		Incoming: incoming,
	}
}

// Active reports whether a transaction is open
func (a *Assembler) Active() bool {
	return a.selected
}

// Discarded returns how many transactions were dropped by a re-select
func (a *Assembler) Discarded() int {
	return a.discarded
}

func (a *Assembler) valid() bool {
	return a.selected && !a.failed && a.hasStart
}

func (a *Assembler) invalidMessage() string {
	start := "None"
	if a.hasStart {
		start = FormatTime(a.start)
	}
	return fmt.Sprintf("Invalid SPI transaction (spi_enable=%s, error=%s, transaction_start_time=%s)",
		pyBool(a.selected), pyBool(a.failed), start)
}

func (a *Assembler) reset() {
	a.frames = nil
	a.selected = false
	a.failed = false
	a.start = 0
	a.hasStart = false
}

// pyBool renders booleans the way the analyzer's diagnostics always have
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
