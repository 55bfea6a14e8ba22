// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is the class of every configuration error; such errors are never retried
	ErrConfig = errors.New("configuration error")
	// ErrUnsupportedBus is returned for buses that cannot carry a data stream
	ErrUnsupportedBus = errors.New("unsupported bus")
	// ErrTimerUnsupported is returned when engine 1 firmware is asked for a timer trigger
	ErrTimerUnsupported = errors.New("timer not supported in this firmware version")
	// ErrBusTimeout is returned when the read loop exhausts its timeout budget
	ErrBusTimeout = errors.New("timeout when receiving data")
	// ErrProtocolSequence is returned when a required acknowledgment does not arrive
	ErrProtocolSequence = errors.New("protocol sequence error")
	// ErrUnsupportedEngine is returned for unknown protocol engine generations
	ErrUnsupportedEngine = errors.New("unsupported protocol engine version")
	// ErrNoStreamSupport is returned when the board firmware cannot stream
	ErrNoStreamSupport = errors.New("adapter does not support data streaming")
	// ErrState is returned when an operation is not valid in the session's current state
	ErrState = errors.New("invalid session state")
)

// ConfigError reports an invalid request definition. It matches ErrConfig and,
// when set, Err with errors.Is.
type ConfigError struct {
	Field     string
	Value     interface{}
	Supported interface{}
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid %s %v", e.Field, e.Value)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Supported != nil {
		msg += fmt.Sprintf(" (supported: %v)", e.Supported)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes ErrConfig and the specific cause
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}

func configError(field string, value interface{}, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}
