// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import "time"

// ResultKind tags a Result as a decoded transaction or an error
type ResultKind uint8

const (
	ResultTransaction ResultKind = iota
	ResultError
)

// String returns the record name used by the capture analyzer
func (k ResultKind) String() string {
	if k == ResultError {
		return "SpiTransactionError"
	}
	return "SpiTransaction"
}

// ErrorReason classifies an error record
type ErrorReason uint8

const (
	ReasonNone ErrorReason = iota
	// ReasonInvalidTransaction: deselect ended a transaction that was not
	// selected, saw a bus error or has no start time
	ReasonInvalidTransaction
	// ReasonBusError: the clock was in the wrong state at select
	ReasonBusError
	// ReasonUnexpectedEvent: the event kind is not recognized
	ReasonUnexpectedEvent
)

func (r ErrorReason) String() string {
	switch r {
	case ReasonInvalidTransaction:
		return "invalid transaction"
	case ReasonBusError:
		return "bus error"
	case ReasonUnexpectedEvent:
		return "unexpected event"
	default:
		return "none"
	}
}

// Result is one output record. Transaction records carry the decoded
// Command and the raw byte sequences; error records carry a Reason.
// Text is the display string in both cases.
type Result struct {
	Kind   ResultKind
	Reason ErrorReason
	Start  time.Duration
	End    time.Duration
	Text   string

	Command  *Command
	Outgoing []byte
	Incoming []byte
}

// IsError reports whether r is an error record
func (r *Result) IsError() bool {
	return r.Kind == ResultError
}

func errorResult(reason ErrorReason, start, end time.Duration, text string) *Result {
	return &Result{
		Kind:   ResultError,
		Reason: reason,
		Start:  start,
		End:    end,
		Text:   text,
	}
}
