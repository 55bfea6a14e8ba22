// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// generalizedStrategy drives engine 2 firmware: each definition becomes a
// macro created on the board at definition time.
type generalizedStrategy struct {
	adapter  Adapter
	routes   *Routes
	logger   log.FieldLogger
	adcReady map[*Sensor]map[uint8]bool // GPIOs already in ADC mode
	live     bool // macros exist on the board
}

func newGeneralizedStrategy(a Adapter, routes *Routes, logger log.FieldLogger) *generalizedStrategy {
	return &generalizedStrategy{
		adapter:  a,
		routes:   routes,
		logger:   logger,
		adcReady: make(map[*Sensor]map[uint8]bool),
	}
}

func (s *generalizedStrategy) Version() EngineVersion { return EngineMacro }

// Define creates the macro, registers its id and attaches the bus actions
func (s *generalizedStrategy) Define(d *RequestDefinition) error {
	var create *evkit.Packet
	switch {
	case d.hasTimer:
		create = evkit.NewCreateMacroPoll(evkit.TimeScaleMS, uint32(d.timer/time.Millisecond))
	case d.hasPin:
		create = evkit.NewCreateMacroInterrupt(d.gpioPin, d.resource.Sense, d.resource.Pull)
	default:
		return configError("trigger", "none", "no rule to make request")
	}

	actions, err := buildActions(d)
	if err != nil {
		return err
	}

	id, err := exchange(s.adapter, d, create)
	if err != nil {
		return err
	}
	if id < 0 || id > 0xFF {
		return fmt.Errorf("%w: macro id %d out of range", ErrProtocolSequence, id)
	}
	if err := s.routes.add(Key(id), d); err != nil {
		return err
	}
	s.live = true
	s.logger.WithField("macro", id).Debugf("created macro for %s", d)

	if d.resource.Bus == BusADC {
		ready := s.adcReady[d.sensor]
		if ready == nil {
			ready = make(map[uint8]bool)
			s.adcReady[d.sensor] = ready
		}
		for _, pin := range d.adcPins {
			if ready[pin] {
				continue
			}
			if _, err := exchange(s.adapter, d, evkit.NewGPIOConfig(pin, evkit.GPIOModeADC)); err != nil {
				return err
			}
			ready[pin] = true
		}
	}

	for _, a := range actions {
		if _, err := exchange(s.adapter, d, a.packet(uint8(id))); err != nil {
			return err
		}
	}
	return nil
}

// Arm starts every macro in registration order
func (s *generalizedStrategy) Arm() error {
	if !s.live && s.routes.Len() > 0 {
		return fmt.Errorf("%w: macros were removed, define the requests again", ErrState)
	}
	for _, k := range s.routes.Keys() {
		d, _ := s.routes.Lookup(k)
		if _, err := exchange(s.adapter, d, evkit.NewStartMacro(uint8(k))); err != nil {
			return err
		}
		s.logger.WithField("macro", int(k)).Debug("started macro")
	}
	return nil
}

// Disarm removes every macro in reverse registration order. All removals are
// attempted; their errors are joined.
func (s *generalizedStrategy) Disarm() error {
	if !s.live {
		return nil
	}
	s.live = false

	var errs []error
	keys := s.routes.Keys()
	for i := len(keys) - 1; i >= 0; i-- {
		d, _ := s.routes.Lookup(keys[i])
		if _, err := exchange(s.adapter, d, evkit.NewRemoveMacro(uint8(keys[i]))); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.WithField("macro", int(keys[i])).Debug("removed macro")
	}
	return errors.Join(errs...)
}
