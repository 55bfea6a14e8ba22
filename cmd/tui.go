// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
	"github.com/Thermoquad/evkit/pkg/stream"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info and warnings
}

// channelRow holds the latest sample of one stream
type channelRow struct {
	labels  []string
	samples uint64
	values  []float64
}

// linkSnapshot is a copy of the link counters, taken on the session goroutine
type linkSnapshot struct {
	total      uint64
	valid      uint64
	crcErrors  uint64
	decodeErrs uint64
	malformed  uint64
	packetRate float64
	errorRate  float64
}

func snapshotStats(s *evkit.Statistics) linkSnapshot {
	s.CalculateRates()
	return linkSnapshot{
		total:      s.TotalPackets,
		valid:      s.ValidPackets,
		crcErrors:  s.CRCErrors,
		decodeErrs: s.DecodeErrors,
		malformed:  s.MalformedPackets,
		packetRate: s.PacketRate,
		errorRate:  s.ErrorRate,
	}
}

// Messages
type tickMsg time.Time
type engineMsg evkit.Version
type channelMsg struct {
	key    stream.Key
	labels []string
}
type sampleMsg stream.Sample
type linkStatsMsg linkSnapshot
type eventMsg eventLogEntry
type armedMsg bool
type timeoutMsg struct{}
type sessionDoneMsg struct {
	count int
	err   error
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
	months := days / 30
	years := months / 12

	seconds %= 60
	minutes %= 60
	hours %= 24
	days %= 30
	months %= 12

	parts := []string{}
	if years > 0 {
		if years == 1 {
			parts = append(parts, "1 year")
		} else {
			parts = append(parts, fmt.Sprintf("%d years", years))
		}
	}
	if months > 0 {
		if months == 1 {
			parts = append(parts, "1 month")
		} else {
			parts = append(parts, fmt.Sprintf("%d months", months))
		}
	}
	if days > 0 {
		if days == 1 {
			parts = append(parts, "1 day")
		} else {
			parts = append(parts, fmt.Sprintf("%d days", days))
		}
	}
	if hours > 0 {
		if hours == 1 {
			parts = append(parts, "1 hour")
		} else {
			parts = append(parts, fmt.Sprintf("%d hours", hours))
		}
	}
	if minutes > 0 {
		if minutes == 1 {
			parts = append(parts, "1 minute")
		} else {
			parts = append(parts, fmt.Sprintf("%d minutes", minutes))
		}
	}
	if seconds > 0 || len(parts) == 0 {
		if seconds == 1 {
			parts = append(parts, "1 second")
		} else {
			parts = append(parts, fmt.Sprintf("%d seconds", seconds))
		}
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

// formatValues renders a sample as label=value pairs
func formatValues(labels []string, values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		value := strconv.FormatFloat(v, 'f', -1, 64)
		if i < len(labels) {
			parts[i] = labels[i] + "=" + value
		} else {
			parts[i] = value
		}
	}
	return strings.Join(parts, " ")
}

// TUI model
type monitorModel struct {
	connInfo      string
	engine        string
	channels      map[stream.Key]*channelRow
	order         []stream.Key
	table         table.Model
	spinner       spinner.Model
	link          linkSnapshot
	eventLog      []eventLogEntry
	maxLogEntries int
	started       time.Time
	armed         bool
	timeouts      uint64
	done          bool
	doneCount     int
	doneErr       error
	width         int
	height        int
	quitting      bool
}

var tableColumnWidths = []int{5, 9, 10}

func newMonitorModel(connInfo string) monitorModel {
	t := table.New(
		table.WithColumns(tableColumns(80)),
		table.WithFocused(true),
		table.WithHeight(6),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(styles)

	return monitorModel{
		connInfo: connInfo,
		engine:   "negotiating",
		channels: make(map[stream.Key]*channelRow),
		table:    t,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("12"))),
		),
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func tableColumns(width int) []table.Column {
	values := width - 10
	for _, w := range tableColumnWidths {
		values -= w
	}
	if values < 20 {
		values = 20
	}
	return []table.Column{
		{Title: "Key", Width: tableColumnWidths[0]},
		{Title: "Samples", Width: tableColumnWidths[1]},
		{Title: "Rate", Width: tableColumnWidths[2]},
		{Title: "Latest", Width: values},
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(tableColumns(msg.Width))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		// Refresh rates between samples
		m.refreshRows()
		return m, tickCmd()

	case engineMsg:
		v := evkit.Version(msg)
		m.engine = fmt.Sprintf("%s (%s)", v, strategyName(v))
		m.addLogEntry(fmt.Sprintf("Board engine %s", v), false)

	case channelMsg:
		if _, ok := m.channels[msg.key]; !ok {
			m.order = append(m.order, msg.key)
			sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
		}
		m.channels[msg.key] = &channelRow{labels: msg.labels}
		m.refreshRows()

	case armedMsg:
		m.armed = bool(msg)
		if m.armed {
			m.started = time.Now()
			m.addLogEntry("Board armed", false)
		} else {
			m.addLogEntry("Board disarmed", false)
		}

	case sampleMsg:
		row, ok := m.channels[msg.Key]
		if !ok {
			row = &channelRow{labels: msg.Labels}
			m.channels[msg.Key] = row
			m.order = append(m.order, msg.Key)
		}
		row.samples++
		row.values = msg.Values
		m.refreshRows()

	case linkStatsMsg:
		m.link = linkSnapshot(msg)

	case timeoutMsg:
		m.timeouts++

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)

	case sessionDoneMsg:
		m.done = true
		m.doneCount = msg.count
		m.doneErr = msg.err
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Stream failed: %v", msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Stream finished after %d samples", msg.count), false)
		}
	}

	return m, nil
}

func (m *monitorModel) refreshRows() {
	elapsed := 0.0
	if !m.started.IsZero() {
		elapsed = time.Since(m.started).Seconds()
	}

	rows := make([]table.Row, 0, len(m.order))
	for _, key := range m.order {
		c := m.channels[key]
		rate := "-"
		if elapsed > 0 {
			rate = fmt.Sprintf("%.1f/s", float64(c.samples)/elapsed)
		}
		latest := strings.Join(c.labels, " ")
		if c.values != nil {
			latest = formatValues(c.labels, c.values)
		}
		rows = append(rows, table.Row{key.String(), strconv.FormatUint(c.samples, 10), rate, latest})
	}
	m.table.SetRows(rows)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Disarming board...\n"
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
	s.WriteString(titleStyle.Render("EVKIT - STREAM MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Engine: %s | Press 'q' to quit",
		m.connInfo, m.engine)))
	s.WriteString("\n\n")

	// Session status
	switch {
	case m.done && m.doneErr != nil:
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ Stream failed after %d samples", m.doneCount)))
	case m.done:
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ Stream finished after %d samples", m.doneCount)))
	case m.armed:
		elapsed := uint64(time.Since(m.started).Milliseconds())
		s.WriteString(m.spinner.View() + " ")
		s.WriteString(statsValueStyle.Render("Streaming for " + formatUptime(elapsed)))
	default:
		s.WriteString(m.spinner.View() + " ")
		s.WriteString(warningStyle.Render("Waiting for board..."))
	}
	s.WriteString("\n\n")

	// Link statistics
	var validPercent float64
	errorCount := m.link.crcErrors + m.link.decodeErrs + m.link.malformed
	if m.link.total > 0 {
		validPercent = float64(m.link.valid) * 100.0 / float64(m.link.total)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.link.total)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.link.valid, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", errorCount)),
		statsLabelStyle.Render("Timeouts:"), warningStyle.Render(fmt.Sprintf("%d", m.timeouts)),
	))
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", m.link.packetRate)),
		statsLabelStyle.Render("Error Rate:"), func() string {
			if m.link.errorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.1f err/s", m.link.errorRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.1f err/s", m.link.errorRate))
		}(),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Streams
	s.WriteString(statsLabelStyle.Render("Streams:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.table.View()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 24 // Reserve space for header, stats and table
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

// tuiSink forwards stream samples into the TUI program
type tuiSink struct {
	send     func(tea.Msg)
	stats    *evkit.Statistics
	interval time.Duration
	lastSnap time.Time
}

// AddChannel implements stream.Sink
func (s *tuiSink) AddChannel(labels []string, key stream.Key) {
	s.send(channelMsg{key: key, labels: labels})
}

// Start implements stream.Sink
func (s *tuiSink) Start() error {
	s.send(eventMsg{timestamp: time.Now(), message: "Stream started"})
	return nil
}

// Feed implements stream.Sink
func (s *tuiSink) Feed(sample stream.Sample) error {
	s.send(sampleMsg(sample))
	if s.stats != nil && time.Since(s.lastSnap) >= s.interval {
		s.lastSnap = time.Now()
		s.send(linkStatsMsg(snapshotStats(s.stats)))
	}
	return nil
}

// Stop implements stream.Sink
func (s *tuiSink) Stop() error {
	if s.stats != nil {
		s.send(linkStatsMsg(snapshotStats(s.stats)))
	}
	s.send(eventMsg{timestamp: time.Now(), message: "Stream stopped"})
	return nil
}

// tuiMetrics reports session events the TUI displays
type tuiMetrics struct {
	send  func(tea.Msg)
	stats *evkit.Statistics
}

func (m *tuiMetrics) SampleDecoded(stream.Key) {}
func (m *tuiMetrics) FrameDropped(stream.Key)  {}
func (m *tuiMetrics) Unattributed(stream.Key)  {}

func (m *tuiMetrics) ReceiveTimeout() {
	m.send(timeoutMsg{})
	if m.stats != nil {
		m.send(linkStatsMsg(snapshotStats(m.stats)))
	}
}

func (m *tuiMetrics) SetArmed(armed bool) {
	m.send(armedMsg(armed))
}

// tuiLogHook routes log entries into the TUI event log
type tuiLogHook struct {
	send func(tea.Msg)
}

func (h *tuiLogHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel, log.WarnLevel, log.InfoLevel}
}

func (h *tuiLogHook) Fire(entry *log.Entry) error {
	message := entry.Message
	if len(entry.Data) > 0 {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			message += fmt.Sprintf(" %s=%v", k, entry.Data[k])
		}
	}
	h.send(eventMsg{
		timestamp: entry.Time,
		message:   message,
		isError:   entry.Level <= log.ErrorLevel,
	})
	return nil
}
