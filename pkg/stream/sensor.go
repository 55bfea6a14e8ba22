// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// Bus is the sensor side bus a board reaches the sensor over
type Bus string

// Bus values
const (
	BusI2C  Bus = "i2c"
	BusSPI  Bus = "spi"
	BusADC  Bus = "adc"
	BusGPIO Bus = "gpio"
)

// ADCConfig holds the conversion parameters for analog sensors
type ADCConfig struct {
	Oversample uint8
	Gain       uint8
	Resolution uint8
	AcqTimeUS  uint16
	Pins       []int // logical ADC pin indices, read in this order
}

// Resource is the resolved board configuration of one sensor.
//
// It is a plain value: builders receive a copy and never observe later changes.
type Resource struct {
	Bus        Bus
	Target     uint8 // board side bus instance
	Address    uint8 // I2C slave address
	ChipSelect uint8 // SPI chip select
	SPIReadMSB bool  // set bit 7 of the register address for SPI reads
	Sense      evkit.Sense
	Pull       evkit.Pull
	AxisMap    AxisMap
	ADC        ADCConfig
}

// Identifier returns the bus address the board uses to reach the sensor
func (r Resource) Identifier() (uint8, error) {
	switch r.Bus {
	case BusI2C:
		return r.Address, nil
	case BusSPI:
		return r.ChipSelect, nil
	default:
		return 0, fmt.Errorf("%w %s: no register addressing", ErrUnsupportedBus, r.Bus)
	}
}

// Sensor is one configured sensor on the evaluation board
type Sensor struct {
	Name     string
	IntPins  []int // logical interrupt pins the sensor drives
	Resource Resource
}

// SupportsIntPin reports whether index is one of the sensor's interrupt pins
func (s *Sensor) SupportsIntPin(index int) bool {
	for _, p := range s.IntPins {
		if p == index {
			return true
		}
	}
	return false
}

// PinResolver maps a sensor's logical pins to board GPIO numbers
type PinResolver interface {
	InterruptPin(s *Sensor, index int) (uint8, error)
	ADCPin(s *Sensor, index int) (uint8, error)
}

// StaticPins is a PinResolver backed by fixed tables, shared by all sensors
type StaticPins struct {
	Interrupt map[int]uint8
	ADC       map[int]uint8
}

// InterruptPin implements PinResolver
func (p StaticPins) InterruptPin(s *Sensor, index int) (uint8, error) {
	pin, ok := p.Interrupt[index]
	if !ok {
		return 0, fmt.Errorf("no GPIO wired to interrupt pin %d of %s", index, s.Name)
	}
	return pin, nil
}

// ADCPin implements PinResolver
func (p StaticPins) ADCPin(s *Sensor, index int) (uint8, error) {
	pin, ok := p.ADC[index]
	if !ok {
		return 0, fmt.Errorf("no GPIO wired to ADC pin %d of %s", index, s.Name)
	}
	return pin, nil
}
