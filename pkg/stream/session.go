// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// State is the lifecycle position of a session
type State int

// Session states
const (
	StateIdle State = iota
	StateArmed
	StateReading
	StateDisarmed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateReading:
		return "reading"
	case StateDisarmed:
		return "disarmed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSink sets the sink decoded samples are fed to
func WithSink(sink Sink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// WithMetrics sets the session observer
func WithMetrics(m Metrics) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the session logger
func WithLogger(logger log.FieldLogger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// ReadOptions controls ReadDataStream
type ReadOptions struct {
	// Limit stops the loop after this many samples; zero reads until stopped
	Limit int
	// MaxTimeouts aborts after this many consecutive receive timeouts; zero never aborts
	MaxTimeouts int
	// OnSample is called for each decoded sample; returning false ends the loop
	OnSample func(Sample) bool
}

// Session streams sensor data from one board.
//
// A session is not safe for concurrent use. Cancellation is observed between
// receives, so arming and disarming always complete as a unit.
type Session struct {
	adapter  Adapter
	strategy Strategy
	routes   *Routes
	pins     PinResolver
	sink     Sink
	metrics  Metrics
	logger   log.FieldLogger
	state    State
	defs     []*RequestDefinition
	sinkOn   bool
}

// NewSession creates a session for a board reporting version. The engine
// strategy is chosen here and never changes.
func NewSession(a Adapter, version evkit.Version, pins PinResolver, opts ...SessionOption) (*Session, error) {
	if !version.StreamSupport {
		return nil, ErrNoStreamSupport
	}
	s := &Session{
		adapter: a,
		routes:  NewRoutes(),
		pins:    pins,
		sink:    nopSink{},
		metrics: nopMetrics{},
		logger:  log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	strategy, err := NewStrategy(EngineVersion(version.Major), a, s.routes, s.logger)
	if err != nil {
		return nil, err
	}
	s.strategy = strategy
	return s, nil
}

// State returns the lifecycle state
func (s *Session) State() State { return s.state }

// Engine returns the engine generation in use
func (s *Session) Engine() EngineVersion { return s.strategy.Version() }

// Routes returns the attribution table
func (s *Session) Routes() *Routes { return s.routes }

// Definitions returns the accepted definitions in order
func (s *Session) Definitions() []*RequestDefinition {
	out := make([]*RequestDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// DefineRequest validates a stream definition and realizes it with the
// session's strategy. Only valid before the session starts.
func (s *Session) DefineRequest(sensor *Sensor, format, header string, opts ...Option) (*RequestDefinition, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("%w: define in %s session", ErrState, s.state)
	}
	d, err := NewRequestDefinition(sensor, s.pins, format, header, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.strategy.Define(d); err != nil {
		return nil, err
	}
	s.defs = append(s.defs, d)
	return d, nil
}

// Start arms the board, announces every channel to the sink and starts it.
// After a failed Start the board may be partly armed; call Stop.
func (s *Session) Start() error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: start in %s session", ErrState, s.state)
	}
	s.state = StateArmed
	s.metrics.SetArmed(true)
	if err := s.strategy.Arm(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}

	for _, k := range s.routes.Keys() {
		d, _ := s.routes.Lookup(k)
		s.sink.AddChannel(d.Labels(), k)
	}
	if err := s.sink.Start(); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}
	s.sinkOn = true
	s.logger.WithField("channels", s.routes.Len()).Info("stream started")
	return nil
}

// Stop disarms the board and stops the sink. Calling it again does nothing.
func (s *Session) Stop() error {
	if s.state == StateDisarmed {
		return nil
	}
	s.state = StateDisarmed
	s.metrics.SetArmed(false)

	var errs []error
	if err := s.strategy.Disarm(); err != nil {
		errs = append(errs, fmt.Errorf("disarm: %w", err))
	}
	if s.sinkOn {
		s.sinkOn = false
		if err := s.sink.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop sink: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the board, removing anything created on it
func (s *Session) Close() error {
	return s.Stop()
}

// ReadDataStream receives, attributes and decodes indications until the
// limit is reached, the callback declines, ctx is cancelled or the timeout
// budget runs out. The session starts first if needed and is always
// stopped on return.
func (s *Session) ReadDataStream(ctx context.Context, opts ReadOptions) (count int, err error) {
	if s.state != StateIdle && s.state != StateArmed {
		return 0, fmt.Errorf("%w: read in %s session", ErrState, s.state)
	}

	defer func() {
		if count == 0 {
			s.logger.Warn("no samples received")
		}
		if stopErr := s.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}()

	if s.state == StateIdle {
		if err := s.Start(); err != nil {
			return 0, err
		}
	}
	s.state = StateReading

	timeouts := 0
	for opts.Limit <= 0 || count < opts.Limit {
		if ctx.Err() != nil {
			s.logger.Debug("stream cancelled")
			return count, nil
		}

		key, frame, err := s.adapter.Receive(evkit.MsgAny)
		if err != nil {
			return count, fmt.Errorf("receive: %w", err)
		}
		if frame == nil {
			timeouts++
			s.metrics.ReceiveTimeout()
			s.logger.WithField("count", timeouts).Debug("receive timeout")
			if opts.MaxTimeouts > 0 && timeouts >= opts.MaxTimeouts {
				return count, fmt.Errorf("%w: %d consecutive timeouts", ErrBusTimeout, timeouts)
			}
			continue
		}
		timeouts = 0

		k := Key(key)
		d, ok := s.routes.Lookup(k)
		if !ok {
			s.metrics.Unattributed(k)
			s.logger.WithField("key", key).Warn("dropping frame for unknown key")
			continue
		}
		if len(frame) != d.FrameSize() {
			s.metrics.FrameDropped(k)
			s.logger.WithField("key", key).
				Errorf("Length of received message was wrong (%d). Expected (%d)", len(frame), d.FrameSize())
			continue
		}
		values, err := d.Decode(frame)
		if err != nil {
			s.metrics.FrameDropped(k)
			s.logger.WithField("key", key).WithError(err).Error("decode failed")
			continue
		}

		sample := Sample{Key: k, Time: time.Now(), Labels: d.Labels(), Values: values}
		if err := s.sink.Feed(sample); err != nil {
			return count, fmt.Errorf("feed sink: %w", err)
		}
		count++
		s.metrics.SampleDecoded(k)

		if opts.OnSample != nil && !opts.OnSample(sample) {
			break
		}
	}
	return count, nil
}
