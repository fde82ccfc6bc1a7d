// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package replay sends the host side of a decoded capture to a real
// SX128x and decodes what the radio answers.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
)

// ErrBusyTimeout is returned when the radio holds BUSY high too long
var ErrBusyTimeout = errors.New("busy timeout")

// Conn is a full-duplex SPI connection; periph's spi.Conn satisfies it
type Conn interface {
	Tx(w, r []byte) error
}

// BusyPin reads the radio's BUSY output
type BusyPin interface {
	Read() gpio.Level
}

// Step pairs a captured transaction with its live replay
type Step struct {
	Captured *sx128x.Result
	Live     *sx128x.Result
}

// Match reports whether the radio answered as it did in the capture
func (s Step) Match() bool {
	return s.Live != nil && s.Captured.Text == s.Live.Text
}

// Player replays transactions onto a connection
type Player struct {
	conn        Conn
	busy        BusyPin
	logger      *zap.Logger
	busyTimeout time.Duration
	gap         time.Duration
	packetType  sx128x.PacketType
}

// Option configures a Player
type Option func(*Player)

// WithBusy waits for pin to read low before each transaction
func WithBusy(pin BusyPin) Option {
	return func(p *Player) {
		p.busy = pin
	}
}

// WithLogger routes diagnostics to logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithGap pauses between transactions
func WithGap(d time.Duration) Option {
	return func(p *Player) {
		p.gap = d
	}
}

// WithPacketType seeds the live decoder's packet type
func WithPacketType(pt sx128x.PacketType) Option {
	return func(p *Player) {
		p.packetType = pt
	}
}

// NewPlayer creates a player on conn
func NewPlayer(conn Conn, opts ...Option) *Player {
	p := &Player{
		conn:        conn,
		logger:      zap.NewNop(),
		busyTimeout: 100 * time.Millisecond,
		packetType:  sx128x.PacketTypeUndefined,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Replay sends the outgoing bytes of every clean transaction in results and
// decodes the responses with a fresh analyzer. Error records and empty
// transactions are skipped. It stops at the first transport error or when
// ctx is done, returning the steps completed so far.
func (p *Player) Replay(ctx context.Context, results []*sx128x.Result) ([]Step, error) {
	analyzer := sx128x.NewAnalyzer(
		sx128x.WithLogger(p.logger),
		sx128x.WithPacketType(p.packetType),
	)
	begin := time.Now()

	var steps []Step
	for _, r := range results {
		if r == nil || r.IsError() || len(r.Outgoing) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		if err := p.waitReady(ctx); err != nil {
			return steps, err
		}

		in := make([]byte, len(r.Outgoing))
		start := time.Since(begin)
		if err := p.conn.Tx(r.Outgoing, in); err != nil {
			return steps, fmt.Errorf("transaction %q: %w", r.Text, err)
		}
		end := time.Since(begin)

		var live *sx128x.Result
		for _, ev := range transactionEvents(start, end, r.Outgoing, in) {
			if rec := analyzer.Decode(ev); rec != nil {
				live = rec
			}
		}
		step := Step{Captured: r, Live: live}
		if !step.Match() && live != nil {
			p.logger.Debug("replay differs from capture",
				zap.String("captured", r.Text),
				zap.String("live", live.Text))
		}
		steps = append(steps, step)

		if p.gap > 0 {
			select {
			case <-ctx.Done():
				return steps, ctx.Err()
			case <-time.After(p.gap):
			}
		}
	}
	return steps, nil
}

// waitReady polls BUSY until it reads low
func (p *Player) waitReady(ctx context.Context) error {
	if p.busy == nil {
		return nil
	}
	deadline := time.Now().Add(p.busyTimeout)
	for p.busy.Read() == gpio.High {
		if time.Now().After(deadline) {
			return ErrBusyTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Microsecond):
		}
	}
	return nil
}

func transactionEvents(start, end time.Duration, out, in []byte) []sx128x.Event {
	return []sx128x.Event{
		{Kind: sx128x.EventEnable, Start: start, End: start},
		{Kind: sx128x.EventResult, Start: start, End: end, MOSI: out, MISO: in},
		{Kind: sx128x.EventDisable, Start: end, End: end},
	}
}
