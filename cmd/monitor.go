// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/evkit/pkg/config"
	"github.com/Thermoquad/evkit/pkg/datalog"
	"github.com/Thermoquad/evkit/pkg/stream"
)

// statsRefresh bounds how often link counters are pushed to the TUI
const statsRefresh = 250 * time.Millisecond

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream sensor data into a live terminal UI",
	Long: `Arm the board with every configured stream and show the latest sample of
each stream, the link statistics and recent events in a terminal UI.

Samples can still be written to a data log file with --log-file. Press 'q'
to quit; the board is disarmed before the program exits.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&streamLoop, "loop", 0, "Stop after this many samples (0 streams until quit)")
	monitorCmd.Flags().IntVar(&streamMaxTimeouts, "max-timeouts", 0, "Abort after this many consecutive receive timeouts (0 never aborts)")
	monitorCmd.Flags().StringVar(&streamLogFile, "log-file", "", "Also write the data log to this file")
	monitorCmd.Flags().StringVar(&streamInfo, "info", "", "Additional info line written to the data log header")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	run, _ := runOptions(cmd)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	p := tea.NewProgram(newMonitorModel(connInfo))

	// Log output would corrupt the alternate screen; entries go to the event log
	logger := log.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(log.GetLevel())
	logger.AddHook(&tuiLogHook{send: p.Send})

	done := make(chan error, 1)
	go func() {
		done <- monitorSession(ctx, conn, run, logger, p.Send)
	}()

	_, runErr := p.Run()
	cancel()
	sessionErr := <-done
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return sessionErr
}

// monitorSession runs one stream session, reporting into the TUI through send
func monitorSession(ctx context.Context, conn Connection, run config.RunOpt, logger *log.Logger, send func(tea.Msg)) (err error) {
	defer func() {
		if err != nil {
			send(sessionDoneMsg{err: err})
		}
	}()

	link, err := openLink(conn, logger)
	if err != nil {
		return err
	}
	version, err := negotiate(link)
	if err != nil {
		return err
	}
	send(engineMsg(version))

	var sink stream.Sink = &tuiSink{send: send, stats: link.Statistics(), interval: statsRefresh}
	if run.LogFile != "" {
		f, err := datalog.NewFile(run.LogFile,
			datalog.WithAdditionalInfo(run.Info),
			datalog.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		sink = datalog.Multi{sink, f}
	}

	session, err := openSession(link, version,
		stream.WithSink(sink),
		stream.WithLogger(logger),
		stream.WithMetrics(&tuiMetrics{send: send, stats: link.Statistics()}),
	)
	if err != nil {
		return err
	}

	count, err := session.ReadDataStream(ctx, stream.ReadOptions{
		Limit:       run.Loop,
		MaxTimeouts: run.MaxTimeouts,
	})
	err = errors.Join(err, session.Close())
	if err == nil {
		send(sessionDoneMsg{count: count})
	}
	return err
}
