// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sx128x

import (
	"fmt"
	"sort"
	"time"
)

// Statistics tracks transaction statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalRecords        uint64
	Transactions        uint64
	CleanTransactions   uint64
	InvalidTransactions uint64
	BusErrors           uint64
	UnexpectedEvents    uint64
	UnknownCommands     uint64
	LengthMismatches    uint64
	FieldErrors         uint64
	UndefinedPacketType uint64

	// Probe link
	CRCErrors    uint64
	DecodeErrors uint64

	// Commands counts decoded transactions by command name
	Commands map[string]uint64

	// Capture time covered by the records seen so far
	FirstRecord time.Duration
	LastRecord  time.Duration

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		Commands:       make(map[string]uint64),
	}
}

// Update updates statistics based on a result and its validation errors
func (s *Statistics) Update(r *Result, validationErrors []ValidationError) {
	if s.TotalRecords == 0 || r.Start < s.FirstRecord {
		s.FirstRecord = r.Start
	}
	if r.End > s.LastRecord {
		s.LastRecord = r.End
	}
	s.TotalRecords++

	if r.Kind == ResultTransaction {
		s.Transactions++
		if r.Command != nil {
			s.Commands[r.Command.Name]++
		}
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyInvalidTransaction:
			s.InvalidTransactions++
		case AnomalyBusError:
			s.BusErrors++
		case AnomalyUnexpectedEvent:
			s.UnexpectedEvents++
		case AnomalyUnknownCommand:
			s.UnknownCommands++
		case AnomalyLengthMismatch:
			s.LengthMismatches++
		case AnomalyFieldError:
			s.FieldErrors++
		case AnomalyUndefinedPacketType:
			s.UndefinedPacketType++
		}
	}
	if r.Kind == ResultTransaction && len(validationErrors) == 0 {
		s.CleanTransactions++
	}

	s.LastUpdateTime = time.Now()
}

// RecordLinkError counts a frame the probe link failed to decode
func (s *Statistics) RecordLinkError(crcMismatch bool) {
	if crcMismatch {
		s.CRCErrors++
	} else {
		s.DecodeErrors++
	}
	s.LastUpdateTime = time.Now()
}

// ErrorCount returns the number of error records and link errors
func (s *Statistics) ErrorCount() uint64 {
	return s.InvalidTransactions + s.BusErrors + s.UnexpectedEvents + s.CRCErrors + s.DecodeErrors
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		s.ErrorRate = float64(s.ErrorCount()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var cleanPercent, errorPercent float64
	if s.TotalRecords > 0 {
		cleanPercent = float64(s.CleanTransactions) * 100.0 / float64(s.TotalRecords)
		errorPercent = float64(s.InvalidTransactions+s.BusErrors+s.UnexpectedEvents) * 100.0 / float64(s.TotalRecords)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Records:   %8d\n", s.TotalRecords)
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("Clean:           %8d (%.1f%%)\n", s.CleanTransactions, cleanPercent)

	if s.InvalidTransactions+s.BusErrors+s.UnexpectedEvents > 0 {
		result += fmt.Sprintf("Error Records:   %8d (%.1f%%)\n", s.InvalidTransactions+s.BusErrors+s.UnexpectedEvents, errorPercent)
		if s.InvalidTransactions > 0 {
			result += fmt.Sprintf("  Invalid:          %5d\n", s.InvalidTransactions)
		}
		if s.BusErrors > 0 {
			result += fmt.Sprintf("  Bus Errors:       %5d\n", s.BusErrors)
		}
		if s.UnexpectedEvents > 0 {
			result += fmt.Sprintf("  Unexpected:       %5d\n", s.UnexpectedEvents)
		}
	}
	if s.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", s.UnknownCommands)
	}
	if s.LengthMismatches > 0 {
		result += fmt.Sprintf("Length Mismatch: %8d\n", s.LengthMismatches)
	}
	if s.FieldErrors > 0 {
		result += fmt.Sprintf("Field Errors:    %8d\n", s.FieldErrors)
	}
	if s.UndefinedPacketType > 0 {
		result += fmt.Sprintf("No Packet Type:  %8d\n", s.UndefinedPacketType)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}

	if len(s.Commands) > 0 {
		result += "Commands:\n"
		for _, name := range s.CommandsByCount() {
			result += fmt.Sprintf("  %-24s %6d\n", name, s.Commands[name])
		}
	}

	if s.LastRecord > s.FirstRecord {
		result += fmt.Sprintf("Capture Span:    %s s\n", FormatTime(s.LastRecord-s.FirstRecord))
	}
	result += fmt.Sprintf("Transaction Rate:%8.1f tx/sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// CommandsByCount returns the decoded command names, most frequent first
func (s *Statistics) CommandsByCount() []string {
	names := make([]string, 0, len(s.Commands))
	for name := range s.Commands {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := s.Commands[names[i]], s.Commands[names[j]]
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	return names
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
