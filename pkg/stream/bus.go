// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// spiReadFlag marks a register address as a read on SPI sensors
const spiReadFlag = 0x80

// busAction is one action attached to a macro. Exactly one field is set.
type busAction struct {
	read *evkit.ReadAction
	adc  *evkit.ADCAction
}

// packet builds the ADD_MACRO_ACTION request for macroID
func (a busAction) packet(macroID uint8) *evkit.Packet {
	if a.adc != nil {
		return evkit.NewAddADCAction(macroID, *a.adc)
	}
	return evkit.NewAddReadAction(macroID, *a.read)
}

// buildActions derives the macro actions for a definition from its bus
func buildActions(d *RequestDefinition) ([]busAction, error) {
	switch d.resource.Bus {
	case BusI2C, BusSPI:
		return registerActions(d)
	case BusADC:
		return adcActions(d), nil
	default:
		return nil, &ConfigError{Field: "bus", Value: d.resource.Bus, Err: ErrUnsupportedBus}
	}
}

func registerActions(d *RequestDefinition) ([]busAction, error) {
	regions := d.Regions()
	if len(regions) == 0 {
		return nil, configError("register", nil, fmt.Sprintf("%s reads need a start register", d.resource.Bus))
	}
	id, err := d.resource.Identifier()
	if err != nil {
		return nil, err
	}

	actions := make([]busAction, 0, len(regions))
	for _, r := range regions {
		if r.Size > 0xFF {
			return nil, configError("read size", r.Size, "must fit in one byte")
		}
		actions = append(actions, busAction{read: &evkit.ReadAction{
			Target:        d.resource.Target,
			Identifier:    id,
			StartRegister: registerAddress(d.resource, r.Start),
			BytesToRead:   uint8(r.Size),
			Discard:       r.Discard,
		}})
	}
	return actions, nil
}

func adcActions(d *RequestDefinition) []busAction {
	cfg := d.resource.ADC
	actions := make([]busAction, 0, len(d.adcPins))
	for _, pin := range d.adcPins {
		actions = append(actions, busAction{adc: &evkit.ADCAction{
			Target:     d.resource.Target,
			Pin:        pin,
			Oversample: cfg.Oversample,
			Gain:       cfg.Gain,
			Resolution: cfg.Resolution,
			AcqTimeUS:  cfg.AcqTimeUS,
		}})
	}
	return actions
}

// registerAddress returns the register byte as sent on the wire
func registerAddress(r Resource, reg uint8) uint8 {
	if r.Bus == BusSPI && r.SPIReadMSB {
		return reg | spiReadFlag
	}
	return reg
}

// interruptPayload builds the engine 1 read description: bus address,
// register and byte count
func interruptPayload(d *RequestDefinition) ([]byte, error) {
	if d.payload != nil {
		return d.payload, nil
	}
	if len(d.regions) > 0 {
		return nil, configError("regions", d.regions, "multi-region reads need engine 2 firmware")
	}
	if !d.hasRegister {
		return nil, configError("register", nil, "an integer register or an explicit payload is required")
	}
	switch d.resource.Bus {
	case BusI2C, BusSPI:
	default:
		return nil, &ConfigError{Field: "bus", Value: d.resource.Bus, Err: ErrUnsupportedBus}
	}
	id, err := d.resource.Identifier()
	if err != nil {
		return nil, err
	}
	if d.ReadSize() < 0 || d.ReadSize() > 0xFF {
		return nil, configError("read size", d.ReadSize(), "must fit in one byte")
	}
	return []byte{id, registerAddress(d.resource, d.register), uint8(d.ReadSize())}, nil
}
