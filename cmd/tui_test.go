// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
	"github.com/Thermoquad/evkit/pkg/stream"
)

// ============================================================
// Test Helpers
// ============================================================

type recorder struct {
	msgs []tea.Msg
}

func (r *recorder) send(msg tea.Msg) {
	r.msgs = append(r.msgs, msg)
}

func update(t *testing.T, m monitorModel, msgs ...tea.Msg) monitorModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(monitorModel)
		if !ok {
			t.Fatalf("Update returned %T", next)
		}
	}
	return m
}

// ============================================================
// Formatting Tests
// ============================================================

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ms   uint64
		want string
	}{
		{0, "0 seconds"},
		{1000, "1 second"},
		{61000, "1 minute and 1 second"},
		{3600000, "1 hour"},
		{90061000, "1 day, 1 hour, 1 minute, and 1 second"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.ms); got != tt.want {
			t.Errorf("formatUptime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatValues(t *testing.T) {
	tests := []struct {
		labels []string
		values []float64
		want   string
	}{
		{[]string{"ch", "ax"}, []float64{1, -2.5}, "ch=1 ax=-2.5"},
		{[]string{"ch"}, []float64{1, 2}, "ch=1 2"},
		{nil, nil, ""},
	}

	for _, tt := range tests {
		if got := formatValues(tt.labels, tt.values); got != tt.want {
			t.Errorf("formatValues(%v, %v) = %q, want %q", tt.labels, tt.values, got, tt.want)
		}
	}
}

func TestStrategyName(t *testing.T) {
	tests := []struct {
		version evkit.Version
		want    string
	}{
		{evkit.Version{Major: 2, StreamSupport: true}, "macro"},
		{evkit.Version{Major: 1, StreamSupport: true}, "interrupt payload (legacy)"},
		{evkit.Version{Major: 3, StreamSupport: true}, "unsupported engine 3"},
		{evkit.Version{Major: 2}, "none (no stream support)"},
	}

	for _, tt := range tests {
		if got := strategyName(tt.version); got != tt.want {
			t.Errorf("strategyName(%+v) = %q, want %q", tt.version, got, tt.want)
		}
	}
}

func TestTableColumns_MinimumValueWidth(t *testing.T) {
	cols := tableColumns(10)
	if got := cols[len(cols)-1].Width; got != 20 {
		t.Errorf("values width = %d, want 20", got)
	}
	cols = tableColumns(120)
	if got := cols[len(cols)-1].Width; got != 120-10-5-9-10 {
		t.Errorf("values width = %d, want %d", got, 120-10-5-9-10)
	}
}

// ============================================================
// Model Tests
// ============================================================

func TestMonitorModel_ChannelsAndSamples(t *testing.T) {
	m := newMonitorModel("Serial: test")
	m = update(t, m,
		channelMsg{key: 7, labels: []string{"ch", "ax"}},
		channelMsg{key: 5, labels: []string{"ch", "v"}},
	)

	rows := m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "5" || rows[1][0] != "7" {
		t.Errorf("rows not ordered by key: %v", rows)
	}
	if rows[0][1] != "0" || rows[0][2] != "-" {
		t.Errorf("fresh row = %v", rows[0])
	}

	m = update(t, m,
		sampleMsg(stream.Sample{Key: 7, Labels: []string{"ch", "ax"}, Values: []float64{1, 3.5}}),
		sampleMsg(stream.Sample{Key: 7, Labels: []string{"ch", "ax"}, Values: []float64{1, 4}}),
	)
	rows = m.table.Rows()
	if rows[1][1] != "2" {
		t.Errorf("samples = %q, want 2", rows[1][1])
	}
	if rows[1][3] != "ch=1 ax=4" {
		t.Errorf("latest = %q", rows[1][3])
	}
}

func TestMonitorModel_SampleForUnknownChannel(t *testing.T) {
	m := update(t, newMonitorModel("x"),
		sampleMsg(stream.Sample{Key: 3, Labels: []string{"ch"}, Values: []float64{9}}),
	)
	rows := m.table.Rows()
	if len(rows) != 1 || rows[0][0] != "3" || rows[0][1] != "1" {
		t.Errorf("rows = %v", rows)
	}
}

func TestMonitorModel_ArmedAndTimeouts(t *testing.T) {
	m := update(t, newMonitorModel("x"), armedMsg(true), timeoutMsg{}, timeoutMsg{})
	if !m.armed || m.started.IsZero() {
		t.Error("armed message did not start the clock")
	}
	if m.timeouts != 2 {
		t.Errorf("timeouts = %d, want 2", m.timeouts)
	}
	if !strings.Contains(m.View(), "Streaming for") {
		t.Error("view does not show streaming status")
	}

	m = update(t, m, armedMsg(false))
	if m.armed {
		t.Error("still armed after disarm")
	}
}

func TestMonitorModel_Engine(t *testing.T) {
	m := update(t, newMonitorModel("x"), engineMsg(evkit.Version{Major: 2, Minor: 1, StreamSupport: true}))
	if m.engine != "2.1 (macro)" {
		t.Errorf("engine = %q", m.engine)
	}
}

func TestMonitorModel_SessionDone(t *testing.T) {
	m := update(t, newMonitorModel("x"), sessionDoneMsg{count: 12})
	if !m.done || m.doneCount != 12 || m.doneErr != nil {
		t.Errorf("done state = %v %d %v", m.done, m.doneCount, m.doneErr)
	}
	if last := m.eventLog[len(m.eventLog)-1]; last.isError {
		t.Error("clean finish logged as error")
	}

	m = update(t, newMonitorModel("x"), sessionDoneMsg{err: stream.ErrBusTimeout})
	last := m.eventLog[len(m.eventLog)-1]
	if !last.isError || !strings.Contains(last.message, "timeout") {
		t.Errorf("last event = %+v", last)
	}
	if !strings.Contains(m.View(), "Stream failed") {
		t.Error("view does not show failure")
	}
}

func TestMonitorModel_EventLogBounded(t *testing.T) {
	m := newMonitorModel("x")
	for i := 0; i < 150; i++ {
		m.addLogEntry(fmt.Sprintf("event %d", i), false)
	}
	if len(m.eventLog) != m.maxLogEntries {
		t.Fatalf("log length = %d, want %d", len(m.eventLog), m.maxLogEntries)
	}
	if m.eventLog[0].message != "event 50" {
		t.Errorf("oldest entry = %q, want event 50", m.eventLog[0].message)
	}
}

func TestMonitorModel_Quit(t *testing.T) {
	m := newMonitorModel("x")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q did not return a command")
	}
	if !next.(monitorModel).quitting {
		t.Error("model not quitting")
	}
}

func TestMonitorModel_ViewHeader(t *testing.T) {
	view := newMonitorModel("Serial: /dev/ttyACM0 @ 115200 baud").View()
	for _, want := range []string{"EVKIT - STREAM MONITOR", "/dev/ttyACM0", "Waiting for board", "(no events yet)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

// ============================================================
// Sink, Metrics and Hook Tests
// ============================================================

func TestTUISink_Forwards(t *testing.T) {
	rec := &recorder{}
	sink := &tuiSink{send: rec.send, stats: evkit.NewStatistics(), interval: time.Hour}

	sink.AddChannel([]string{"ch", "ax"}, 4)
	if err := sink.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sink.Feed(stream.Sample{Key: 4, Values: []float64{1, 2}}); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}

	var channels, samples, stats int
	for _, msg := range rec.msgs {
		switch msg.(type) {
		case channelMsg:
			channels++
		case sampleMsg:
			samples++
		case linkStatsMsg:
			stats++
		}
	}
	if channels != 1 || samples != 3 {
		t.Errorf("channels=%d samples=%d", channels, samples)
	}
	// The first feed snapshots, later ones wait for the interval
	if stats != 1 {
		t.Errorf("stats snapshots = %d, want 1", stats)
	}

	if err := sink.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := rec.msgs[len(rec.msgs)-1].(eventMsg); !ok {
		t.Errorf("last message = %T, want eventMsg", rec.msgs[len(rec.msgs)-1])
	}
}

func TestTUIMetrics(t *testing.T) {
	rec := &recorder{}
	m := &tuiMetrics{send: rec.send}

	m.SetArmed(true)
	m.ReceiveTimeout()
	m.SampleDecoded(1)
	m.FrameDropped(1)
	m.Unattributed(1)

	if len(rec.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(rec.msgs))
	}
	if armed, ok := rec.msgs[0].(armedMsg); !ok || !bool(armed) {
		t.Errorf("first message = %#v", rec.msgs[0])
	}
	if _, ok := rec.msgs[1].(timeoutMsg); !ok {
		t.Errorf("second message = %#v", rec.msgs[1])
	}
}

func TestTUILogHook(t *testing.T) {
	rec := &recorder{}
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.AddHook(&tuiLogHook{send: rec.send})

	logger.WithFields(log.Fields{"key": 3, "bus": "i2c"}).Warn("dropping frame")
	logger.WithError(errors.New("boom")).Error("decode failed")
	logger.Debug("not enabled")

	if len(rec.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(rec.msgs))
	}
	warn := rec.msgs[0].(eventMsg)
	if warn.message != "dropping frame bus=i2c key=3" || warn.isError {
		t.Errorf("warn event = %+v", warn)
	}
	failure := rec.msgs[1].(eventMsg)
	if failure.message != "decode failed error=boom" || !failure.isError {
		t.Errorf("error event = %+v", failure)
	}
}
