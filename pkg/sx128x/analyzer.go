// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"

	"go.uber.org/zap"
)

// Analyzer is the entry point for a capture: it routes bus events to an
// Assembler and returns result records. An Analyzer is not safe for
// concurrent use; give each capture stream its own.
type Analyzer struct {
	state     *ProtocolState
	assembler *Assembler
	logger    *zap.Logger
}

// Option configures an Analyzer
type Option func(*analyzerConfig)

type analyzerConfig struct {
	logger     *zap.Logger
	packetType PacketType
}

// WithLogger routes diagnostics to logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *analyzerConfig) {
		c.logger = logger
	}
}

// WithPacketType sets the initial packet type, for captures that start
// after the radio was configured
func WithPacketType(pt PacketType) Option {
	return func(c *analyzerConfig) {
		c.packetType = pt
	}
}

// NewAnalyzer creates an analyzer with a fresh ProtocolState
func NewAnalyzer(opts ...Option) *Analyzer {
	cfg := analyzerConfig{
		logger:     zap.NewNop(),
		packetType: PacketTypeUndefined,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	state := NewProtocolState()
	state.SetPacketType(cfg.packetType)

	return &Analyzer{
		state:     state,
		assembler: NewAssembler(state, cfg.logger),
		logger:    cfg.logger,
	}
}

// Decode processes one event. It returns nil when the event produces no
// record (select and activity).
func (a *Analyzer) Decode(ev Event) *Result {
	switch ev.Kind {
	case EventEnable:
		a.assembler.Select(ev)
		return nil
	case EventResult:
		a.assembler.Activity(ev)
		return nil
	case EventDisable:
		return a.assembler.Deselect(ev)
	case EventError:
		return a.assembler.BusError(ev)
	default:
		a.logger.Warn("unexpected event kind", zap.String("kind", string(ev.Kind)))
		return errorResult(ReasonUnexpectedEvent, ev.Start, ev.End,
			fmt.Sprintf(unexpectedEventMessage, ev.Kind))
	}
}

// DecodeAll processes events in order and returns every record produced
func (a *Analyzer) DecodeAll(events []Event) []*Result {
	var results []*Result
	for _, ev := range events {
		if r := a.Decode(ev); r != nil {
			results = append(results, r)
		}
	}
	return results
}

// State returns the protocol state shared by every transaction of the capture
func (a *Analyzer) State() *ProtocolState {
	return a.state
}

// Discarded returns how many unterminated transactions were dropped
func (a *Analyzer) Discarded() int {
	return a.assembler.Discarded()
}
