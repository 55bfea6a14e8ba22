// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/evkit/pkg/config"
	"github.com/Thermoquad/evkit/pkg/datalog"
	"github.com/Thermoquad/evkit/pkg/metrics"
	"github.com/Thermoquad/evkit/pkg/stream"
)

var (
	streamLoop        int
	streamMaxTimeouts int
	streamLogFile     string
	streamNoConsole   bool
	streamMetricsAddr string
	streamInfo        string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream sensor data to the console and a data log",
	Long: `Arm the board with every configured stream and log the samples.

The board's protocol engine decides how streams are realized: engine 2
firmware gets one macro per stream, engine 1 firmware one interrupt payload
per stream. Each sample is written as a '!' separated line prefixed with the
seconds elapsed since the stream started.

The board is always disarmed on exit, including on Ctrl+C.

Examples:
  # Stream until Ctrl+C
  evkit stream -c kx134.yaml

  # Log 1000 samples to a file without console output
  evkit stream -c kx134.yaml --loop 1000 --log-file run.txt --no-console

  # Expose Prometheus counters while streaming
  evkit stream -c kx134.yaml --metrics-addr :9090`,
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().IntVar(&streamLoop, "loop", 0, "Stop after this many samples (0 streams until interrupted)")
	streamCmd.Flags().IntVar(&streamMaxTimeouts, "max-timeouts", 0, "Abort after this many consecutive receive timeouts (0 never aborts)")
	streamCmd.Flags().StringVar(&streamLogFile, "log-file", "", "Also write the data log to this file")
	streamCmd.Flags().BoolVar(&streamNoConsole, "no-console", false, "Do not write samples to standard output")
	streamCmd.Flags().StringVar(&streamMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	streamCmd.Flags().StringVar(&streamInfo, "info", "", "Additional info line written to the data log header")
}

// runOptions merges stream flags into the configured run options
func runOptions(cmd *cobra.Command) (config.RunOpt, string) {
	run := cfg.Run
	addr := cfg.Metrics.Addr
	flags := cmd.Flags()
	if flags.Changed("loop") {
		run.Loop = streamLoop
	}
	if flags.Changed("max-timeouts") {
		run.MaxTimeouts = streamMaxTimeouts
	}
	if flags.Changed("log-file") {
		run.LogFile = streamLogFile
	}
	if flags.Changed("no-console") {
		run.Console = !streamNoConsole
	}
	if flags.Changed("info") {
		run.Info = streamInfo
	}
	if flags.Changed("metrics-addr") {
		addr = streamMetricsAddr
	}
	return run, addr
}

// dataSinks builds the console and file data logs selected by run
func dataSinks(run config.RunOpt) (stream.Sink, error) {
	opts := []datalog.Option{
		datalog.WithAdditionalInfo(run.Info),
		datalog.WithLogger(log.StandardLogger()),
	}

	var sinks datalog.Multi
	if run.Console {
		sinks = append(sinks, datalog.NewConsole(opts...))
	}
	if run.LogFile != "" {
		f, err := datalog.NewFile(run.LogFile, opts...)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}

	switch len(sinks) {
	case 0:
		log.Warn("no data sink selected, samples are only counted")
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}

// serveMetrics starts a Prometheus endpoint on addr
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return srv
}

func runStream(cmd *cobra.Command, args []string) error {
	run, metricsAddr := runOptions(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	logger := log.StandardLogger()
	link, err := openLink(conn, logger)
	if err != nil {
		return err
	}
	version, err := negotiate(link)
	if err != nil {
		return err
	}

	opts := []stream.SessionOption{stream.WithLogger(logger)}
	sink, err := dataSinks(run)
	if err != nil {
		return err
	}
	if sink != nil {
		opts = append(opts, stream.WithSink(sink))
	}
	if metricsAddr != "" {
		collector, err := metrics.NewCollector(prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		opts = append(opts, stream.WithMetrics(collector))

		srv := serveMetrics(metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	session, err := openSession(link, version, opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	log.WithFields(log.Fields{
		"connection": connInfo,
		"engine":     version.String(),
		"streams":    len(session.Definitions()),
	}).Info("streaming")

	count, err := session.ReadDataStream(ctx, stream.ReadOptions{
		Limit:       run.Loop,
		MaxTimeouts: run.MaxTimeouts,
	})
	log.WithFields(log.Fields{
		"samples": count,
		"frames":  link.Statistics().TotalPackets,
	}).Info("stream finished")
	return err
}
