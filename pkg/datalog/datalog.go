// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package datalog writes decoded sensor streams as text logs.
//
// The format is line oriented with "!" separated fields:
//
//	# run 1b4e28ba-2fa1-11d2-883f-0016d3cca427 start 2025-06-01T10:00:00Z
//	# info kx134 at 25600Hz
//	#0!ch!ax!ay!az
//	0.000512!1!16!32!48
//	# run 1b4e28ba-2fa1-11d2-883f-0016d3cca427 stop 2025-06-01T10:00:05Z samples 1
//
// Header lines map each attribution key to its labels; each sample line is
// the time since start in seconds followed by the decoded values.
package datalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/stream"
)

type channel struct {
	key    stream.Key
	labels []string
}

// Writer is a stream.Sink writing the text log format to an io.Writer
type Writer struct {
	mu       sync.Mutex
	out      *bufio.Writer
	path     string // created on Start when set
	closer   io.Closer
	runID    uuid.UUID
	info     string
	now      func() time.Time
	logger   log.FieldLogger
	channels []channel
	started  time.Time
	samples  uint64
}

// Option configures a Writer
type Option func(*Writer)

// WithAdditionalInfo adds a free form info line after the start banner
func WithAdditionalInfo(info string) Option {
	return func(w *Writer) { w.info = info }
}

// WithRunID fixes the run id instead of generating one
func WithRunID(id uuid.UUID) Option {
	return func(w *Writer) { w.runID = id }
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets the logger for write failures
func WithLogger(logger log.FieldLogger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates a sink writing to out
func NewWriter(out io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out:    bufio.NewWriter(out),
		runID:  uuid.New(),
		now:    time.Now,
		logger: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewConsole creates a sink writing to standard output
func NewConsole(opts ...Option) *Writer {
	return NewWriter(os.Stdout, opts...)
}

// NewFile creates a sink writing to a file at path. The file is created by
// Start and closed by Stop, so a stream that never starts leaves nothing
// behind.
func NewFile(path string, opts ...Option) (*Writer, error) {
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("log file directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("log file directory: %s is not a directory", filepath.Dir(path))
	}
	w := NewWriter(io.Discard, opts...)
	w.path = path
	return w, nil
}

// RunID returns the id written in the start and stop banners
func (w *Writer) RunID() uuid.UUID {
	return w.runID
}

// AddChannel implements stream.Sink
func (w *Writer) AddChannel(labels []string, key stream.Key) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channels = append(w.channels, channel{key: key, labels: labels})
}

// Start implements stream.Sink. It writes the banner and channel headers.
func (w *Writer) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path != "" && w.closer == nil {
		f, err := os.Create(w.path)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		w.out.Reset(f)
		w.closer = f
	}

	w.started = w.now()
	w.samples = 0
	fmt.Fprintf(w.out, "# run %s start %s\n", w.runID, w.started.UTC().Format(time.RFC3339))
	if w.info != "" {
		fmt.Fprintf(w.out, "# info %s\n", w.info)
	}
	for _, c := range w.channels {
		fmt.Fprintf(w.out, "#%d!%s\n", c.key, strings.Join(c.labels, "!"))
	}
	return w.out.Flush()
}

// Feed implements stream.Sink
func (w *Writer) Feed(s stream.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	elapsed := s.Time.Sub(w.started).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	w.out.WriteString(strconv.FormatFloat(elapsed, 'f', 6, 64))
	for _, v := range s.Values {
		w.out.WriteByte('!')
		w.out.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	w.out.WriteByte('\n')
	w.samples++
	if err := w.out.Flush(); err != nil {
		w.logger.WithError(err).Error("data log write failed")
		return err
	}
	return nil
}

// Stop implements stream.Sink. It writes the stop banner and closes the file.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path != "" && w.closer == nil {
		return nil
	}
	fmt.Fprintf(w.out, "# run %s stop %s samples %d\n",
		w.runID, w.now().UTC().Format(time.RFC3339), w.samples)
	err := w.out.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}
