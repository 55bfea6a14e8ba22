// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package datalog

import (
	"errors"

	"github.com/Thermoquad/evkit/pkg/stream"
)

// Multi fans a stream out to several sinks
type Multi []stream.Sink

// AddChannel implements stream.Sink
func (m Multi) AddChannel(labels []string, key stream.Key) {
	for _, s := range m {
		s.AddChannel(labels, key)
	}
}

// Start implements stream.Sink
func (m Multi) Start() error {
	for _, s := range m {
		if err := s.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Feed implements stream.Sink. Every sink is fed even if one fails.
func (m Multi) Feed(sample stream.Sample) error {
	var errs []error
	for _, s := range m {
		if err := s.Feed(sample); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop implements stream.Sink. Every sink is stopped even if one fails.
func (m Multi) Stop() error {
	var errs []error
	for _, s := range m {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
