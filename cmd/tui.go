// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/sxscope/pkg/probe"
	"github.com/Thermoquad/sxscope/pkg/sx128x"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	detail    string
	isError   bool // true for errors, false for info
}

// Implement list.Item interface
func (e logEntry) Title() string {
	if e.isError {
		return "✗ " + e.message
	}
	return "ℹ " + e.message
}

func (e logEntry) Description() string {
	ts := e.timestamp.Format("01/02/06 15:04:05.000")
	if e.detail == "" {
		return ts
	}
	return ts + "  " + e.detail
}

func (e logEntry) FilterValue() string { return e.message + " " + e.detail }

// TUI model
type model struct {
	connMgr  *connectionManager
	connInfo string
	showAll  bool
	stats    *sx128x.Statistics

	entries       []logEntry
	maxLogEntries int
	eventList     list.Model
	filter        textinput.Model

	synchronized   bool
	invalidBytes   int
	lostEvents     uint64
	packetType     sx128x.PacketType
	bridge         *probe.BridgeStatus
	bridgeUptime   uint64 // milliseconds
	hasUptime      bool
	capturing      bool
	connectionLost bool

	width    int
	height   int
	quitting bool
}

// Messages
type tickMsg time.Time

type linkBatchMsg struct {
	updates []linkUpdate
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

type sendResultMsg struct {
	what string
	err  error
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	units := []struct {
		value uint64
		name  string
	}{
		{days, "day"},
		{hours % 24, "hour"},
		{minutes % 60, "minute"},
		{seconds % 60, "second"},
	}

	parts := []string{}
	for _, u := range units {
		switch {
		case u.value == 1:
			parts = append(parts, "1 "+u.name)
		case u.value > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", u.value, u.name))
		}
	}
	if len(parts) == 0 {
		return "0 seconds"
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connMgr *connectionManager, connInfo string, showAll bool) model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetSpacing(0)
	eventList := list.New([]list.Item{}, delegate, 76, 10)
	eventList.SetShowTitle(false)
	eventList.SetShowStatusBar(false)
	eventList.SetShowHelp(false)
	eventList.SetFilteringEnabled(false)

	ti := textinput.New()
	ti.Prompt = "Filter: "
	ti.Placeholder = "command or anomaly"
	ti.CharLimit = 64
	ti.Width = 40

	return model{
		connMgr:       connMgr,
		connInfo:      connInfo,
		showAll:       showAll,
		stats:         sx128x.NewStatistics(),
		entries:       make([]logEntry, 0),
		maxLogEntries: 500,
		eventList:     eventList,
		filter:        ti,
		packetType:    sx128x.PacketTypeUndefined,
		capturing:     true,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// sendCommand writes a bridge command without blocking the UI
func (m model) sendCommand(what string, build func(seq uint16) *probe.Packet) tea.Cmd {
	cm := m.connMgr
	return func() tea.Msg {
		if cm == nil {
			return sendResultMsg{what: what, err: errors.New("not connected")}
		}
		return sendResultMsg{what: what, err: cm.send(build)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filter.Focused() {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "/":
			cmd := m.filter.Focus()
			return m, cmd
		case "s":
			start := !m.capturing
			m.capturing = start
			what := "CAPTURE_STOP"
			if start {
				what = "CAPTURE_START"
			}
			return m, m.sendCommand(what, func(seq uint16) *probe.Packet {
				return probe.NewCaptureCommand(seq, start)
			})
		case "p":
			return m, m.sendCommand("PING_REQUEST", probe.NewPingRequest)
		case "r":
			m.stats.Reset()
			m.lostEvents = 0
			m.addLogEntry("Statistics reset", "", false)
			m.refreshList()
			return m, nil
		}
		var cmd tea.Cmd
		m.eventList, cmd = m.eventList.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.eventList.SetSize(m.width-6, m.logHeight())

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case linkBatchMsg:
		for _, u := range msg.updates {
			m.applyUpdate(u)
		}
		m.refreshList()

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry("Connection lost, reconnecting...", "", true)
		m.refreshList()

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", msg.connInfo, false)
		m.refreshList()

	case sendResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed", msg.what), msg.err.Error(), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s sent", msg.what), "", false)
		}
		m.refreshList()
	}

	return m, nil
}

func (m model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filter.SetValue("")
		m.filter.Blur()
		m.refreshList()
		return m, nil
	case "enter":
		m.filter.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refreshList()
	return m, cmd
}

// applyUpdate folds one link update into the statistics and event log
func (m *model) applyUpdate(u linkUpdate) {
	if u.synced {
		m.synchronized = true
		m.invalidBytes = u.skipped
		if u.skipped > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", u.skipped), "", false)
		} else {
			m.addLogEntry("Synchronized", "", false)
		}
	}
	if u.lost > 0 {
		m.lostEvents += u.lost
		m.addLogEntry(fmt.Sprintf("%d bus events lost", u.lost), "sequence gap", true)
	}

	switch {
	case u.linkErr != nil:
		crc := errors.Is(u.linkErr, probe.ErrCRCMismatch)
		m.stats.RecordLinkError(crc)
		label := "DECODE ERROR"
		if crc {
			label = "CRC ERROR"
		}
		m.addLogEntry(label, u.linkErr.Error(), true)

	case u.result != nil:
		m.stats.Update(u.result, u.validationErrors)
		m.packetType = u.packetType
		if len(u.validationErrors) > 0 {
			for _, err := range u.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", err.Type, err.Message), u.result.Text, true)
			}
		} else if m.showAll {
			m.addLogEntry(u.result.Text, sx128x.FormatTime(u.result.Start)+" s", false)
		}

	case u.status != nil:
		m.bridge = u.status
		m.bridgeUptime = u.status.Uptime
		m.hasUptime = true

	case u.ping != nil:
		m.bridgeUptime = u.ping.Uptime
		m.hasUptime = true
		m.addLogEntry("PING_RESPONSE", "uptime "+formatUptime(u.ping.Uptime), false)
	}
}

func (m *model) addLogEntry(message, detail string, isError bool) {
	m.entries = append(m.entries, logEntry{
		timestamp: time.Now(),
		message:   message,
		detail:    detail,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.entries) > m.maxLogEntries {
		m.entries = m.entries[len(m.entries)-m.maxLogEntries:]
	}
}

// refreshList shows the entries matching the filter, newest selected
func (m *model) refreshList() {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	items := make([]list.Item, 0, len(m.entries))
	for _, e := range m.entries {
		if query == "" || strings.Contains(strings.ToLower(e.FilterValue()), query) {
			items = append(items, e)
		}
	}
	m.eventList.SetItems(items)
	if len(items) > 0 {
		m.eventList.Select(len(items) - 1)
	}
}

// logHeight is the space left for the event list below the statistics
func (m model) logHeight() int {
	h := m.height - 20
	if h < 4 {
		h = 4
	}
	return h
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SXSCOPE - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All transactions"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | q quit, / filter, s capture, p ping, r reset",
		m.connInfo, mode)))
	s.WriteString("\n\n")

	// Link status
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection lost, reconnecting..."))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	if !m.capturing {
		s.WriteString(warningStyle.Render("  [capture stopped]"))
	}
	s.WriteString("\n\n")

	// Statistics
	m.stats.CalculateRates()
	errorCount := m.stats.ErrorCount()
	var cleanPercent, errorPercent float64
	if m.stats.TotalRecords > 0 {
		cleanPercent = float64(m.stats.CleanTransactions) * 100.0 / float64(m.stats.TotalRecords)
		errorPercent = float64(errorCount) * 100.0 / float64(m.stats.TotalRecords)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalRecords)),
		statsLabelStyle.Render("Clean:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.CleanTransactions, cleanPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", errorCount, errorPercent)),
		statsLabelStyle.Render("Packet Type:"), statsValueStyle.Render(m.packetType.String()),
	))

	if m.stats.InvalidTransactions > 0 || m.stats.BusErrors > 0 || m.stats.UnexpectedEvents > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Invalid:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.InvalidTransactions)),
			statsLabelStyle.Render("Bus Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.BusErrors)),
			statsLabelStyle.Render("Unexpected:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.UnexpectedEvents)),
		))
	}

	if m.stats.CRCErrors > 0 || m.stats.DecodeErrors > 0 || m.lostEvents > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("CRC Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.CRCErrors)),
			statsLabelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
			statsLabelStyle.Render("Lost Events:"), errorStyle.Render(fmt.Sprintf("%d", m.lostEvents)),
		))
	}

	anomalies := m.stats.UnknownCommands + m.stats.LengthMismatches + m.stats.FieldErrors + m.stats.UndefinedPacketType
	if anomalies > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s (%s: %d, %s: %d, %s: %d, %s: %d)\n",
			statsLabelStyle.Render("Anomalies:"), warningStyle.Render(fmt.Sprintf("%d", anomalies)),
			headerStyle.Render("unknown"), m.stats.UnknownCommands,
			headerStyle.Render("short"), m.stats.LengthMismatches,
			headerStyle.Render("field"), m.stats.FieldErrors,
			headerStyle.Render("no packet type"), m.stats.UndefinedPacketType,
		))
	}

	if names := m.stats.CommandsByCount(); len(names) > 0 {
		if len(names) > 4 {
			names = names[:4]
		}
		top := make([]string, len(names))
		for i, name := range names {
			top[i] = fmt.Sprintf("%s %d", name, m.stats.Commands[name])
		}
		statsContent.WriteString(fmt.Sprintf("%s %s\n",
			statsLabelStyle.Render("Top:"), headerStyle.Render(strings.Join(top, ", "))))
	}

	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Transaction Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f tx/s", m.stats.TransactionRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.stats.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Bridge section (only shown once the bridge reported in)
	if m.bridge != nil || m.hasUptime {
		s.WriteString(statsLabelStyle.Render("Bridge:"))
		s.WriteString("\n")

		bridgeContent := strings.Builder{}
		if m.bridge != nil {
			bridgeContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
				statsLabelStyle.Render("Firmware:"), statsValueStyle.Render(m.bridge.Firmware),
				statsLabelStyle.Render("SPI Clock:"), statsValueStyle.Render(fmt.Sprintf("%d Hz", m.bridge.SPIClock)),
				statsLabelStyle.Render("Dropped:"), statsValueStyle.Render(fmt.Sprintf("%d", m.bridge.Dropped)),
			))
		}
		if m.hasUptime {
			bridgeContent.WriteString(fmt.Sprintf("%s %s",
				statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(m.bridgeUptime))))
		}

		s.WriteString(boxStyle.Render(strings.TrimRight(bridgeContent.String(), "\n")))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logContent := headerStyle.Render("  (no events yet)")
	if len(m.eventList.Items()) > 0 {
		logContent = m.eventList.View()
	} else if m.filter.Value() != "" {
		logContent = headerStyle.Render("  (no events match the filter)")
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent))
	s.WriteString("\n")

	if m.filter.Focused() || m.filter.Value() != "" {
		s.WriteString(m.filter.View())
	}

	return s.String()
}
