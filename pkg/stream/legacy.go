// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// legacyStrategy drives engine 1 firmware: one interrupt payload per pin,
// enabled at arm time. The board assigns the attribution index when the
// interrupt is enabled.
type legacyStrategy struct {
	adapter  Adapter
	routes   *Routes
	logger   log.FieldLogger
	defs     []*RequestDefinition
	payloads map[*RequestDefinition][]byte
	armed    []*RequestDefinition
}

func newLegacyStrategy(a Adapter, routes *Routes, logger log.FieldLogger) *legacyStrategy {
	return &legacyStrategy{
		adapter:  a,
		routes:   routes,
		logger:   logger,
		payloads: make(map[*RequestDefinition][]byte),
	}
}

func (s *legacyStrategy) Version() EngineVersion { return EngineLegacy }

// Define validates and stores the definition. Nothing is sent.
func (s *legacyStrategy) Define(d *RequestDefinition) error {
	if d.hasTimer {
		return &ConfigError{Field: "timer", Value: d.timer, Err: ErrTimerUnsupported}
	}
	if !d.hasPin {
		return configError("trigger", "none", "engine 1 firmware needs an interrupt pin")
	}
	payload, err := interruptPayload(d)
	if err != nil {
		return err
	}
	s.payloads[d] = payload
	s.defs = append(s.defs, d)
	return nil
}

// Arm enables each interrupt in definition order and registers the index the
// board returns
func (s *legacyStrategy) Arm() error {
	s.routes.reset()
	for _, d := range s.defs {
		req := evkit.NewInterruptEnable(d.gpioPin, s.payloads[d], d.resource.Sense, d.resource.Pull)
		idx, err := exchange(s.adapter, d, req)
		if err != nil {
			return err
		}
		s.armed = append(s.armed, d)
		if err := s.routes.add(Key(idx), d); err != nil {
			return err
		}
		s.logger.WithField("index", idx).Debugf("enabled interrupt for %s", d)
	}
	return nil
}

// Disarm disables the enabled interrupts in reverse order
func (s *legacyStrategy) Disarm() error {
	var errs []error
	for i := len(s.armed) - 1; i >= 0; i-- {
		d := s.armed[i]
		if _, err := exchange(s.adapter, d, evkit.NewInterruptDisable(d.gpioPin)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.WithField("gpio", d.gpioPin).Debug("disabled interrupt")
	}
	s.armed = nil
	return errors.Join(errs...)
}
