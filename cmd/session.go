// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
	"github.com/Thermoquad/evkit/pkg/stream"
)

// openLink wraps conn in a Link using the configured receive timeout
func openLink(conn Connection, logger log.FieldLogger) (*evkit.Link, error) {
	timeout, err := cfg.ReceiveTimeout()
	if err != nil {
		return nil, err
	}
	return evkit.NewLink(conn,
		evkit.WithReceiveTimeout(timeout),
		evkit.WithLinkLogger(logger),
	), nil
}

// negotiate queries the board version and refuses boards that cannot stream
func negotiate(link *evkit.Link) (evkit.Version, error) {
	if len(cfg.Streams) == 0 {
		return evkit.Version{}, errors.New("no streams configured (see \"evkit config init\")")
	}
	version, err := link.QueryVersion()
	if err != nil {
		return evkit.Version{}, fmt.Errorf("version query failed: %w", err)
	}
	if !version.StreamSupport {
		return version, fmt.Errorf("%w: engine %s", stream.ErrNoStreamSupport, version)
	}
	return version, nil
}

// openSession creates a session for version and defines every configured stream
func openSession(link *evkit.Link, version evkit.Version, opts ...stream.SessionOption) (*stream.Session, error) {
	pins, err := cfg.PinResolver()
	if err != nil {
		return nil, err
	}
	s, err := stream.NewSession(link, version, pins, opts...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Define(s); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}
