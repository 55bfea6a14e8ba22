// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/evkit/pkg/evkit"
	"github.com/Thermoquad/evkit/pkg/stream"
)

// ParseBus parses a bus name
func ParseBus(s string) (stream.Bus, error) {
	switch b := stream.Bus(strings.ToLower(s)); b {
	case stream.BusI2C, stream.BusSPI, stream.BusADC, stream.BusGPIO:
		return b, nil
	}
	return "", fmt.Errorf("unknown bus %q", s)
}

// ParseSense parses an interrupt sense: low or high
func ParseSense(s string) (evkit.Sense, error) {
	switch strings.ToLower(s) {
	case "low", "falling":
		return evkit.SenseLow, nil
	case "high", "rising":
		return evkit.SenseHigh, nil
	}
	return 0, fmt.Errorf("unknown sense %q", s)
}

// ParsePull parses a pull mode: none, down or up
func ParsePull(s string) (evkit.Pull, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return evkit.PullNone, nil
	case "down":
		return evkit.PullDown, nil
	case "up":
		return evkit.PullUp, nil
	}
	return 0, fmt.Errorf("unknown pull %q", s)
}

func byteValue(field string, v int) (uint8, error) {
	if v < 0 || v > 0xFF {
		return 0, fmt.Errorf("%s %d out of range 0..255", field, v)
	}
	return uint8(v), nil
}

// ToSensor converts the entry to a stream.Sensor
func (o SensorOpt) ToSensor() (*stream.Sensor, error) {
	bus, err := ParseBus(o.Bus)
	if err != nil {
		return nil, err
	}
	sense, err := ParseSense(o.Sense)
	if err != nil {
		return nil, err
	}
	pull, err := ParsePull(o.Pull)
	if err != nil {
		return nil, err
	}

	res := stream.Resource{
		Bus:        bus,
		SPIReadMSB: o.SPIReadMSB,
		Sense:      sense,
		Pull:       pull,
		AxisMap:    stream.IdentityAxisMap,
	}
	if res.Target, err = byteValue("target", o.Target); err != nil {
		return nil, err
	}
	if res.Address, err = byteValue("address", o.Address); err != nil {
		return nil, err
	}
	if res.ChipSelect, err = byteValue("chip_select", o.ChipSelect); err != nil {
		return nil, err
	}
	if len(o.AxisMap) > 0 {
		if res.AxisMap, err = stream.ParseAxisMap(o.AxisMap); err != nil {
			return nil, err
		}
	}
	if o.ADC != nil {
		res.ADC = stream.ADCConfig{Pins: append([]int(nil), o.ADC.Pins...)}
		if res.ADC.Oversample, err = byteValue("adc.oversample", o.ADC.Oversample); err != nil {
			return nil, err
		}
		if res.ADC.Gain, err = byteValue("adc.gain", o.ADC.Gain); err != nil {
			return nil, err
		}
		if res.ADC.Resolution, err = byteValue("adc.resolution", o.ADC.Resolution); err != nil {
			return nil, err
		}
		if o.ADC.AcqTimeUS < 0 || o.ADC.AcqTimeUS > 0xFFFF {
			return nil, fmt.Errorf("adc.acq_time_us %d out of range", o.ADC.AcqTimeUS)
		}
		res.ADC.AcqTimeUS = uint16(o.ADC.AcqTimeUS)
	}

	return &stream.Sensor{
		Name:     o.Name,
		IntPins:  append([]int(nil), o.IntPins...),
		Resource: res,
	}, nil
}

// Options converts the entry to request options
func (o StreamOpt) Options() ([]stream.Option, error) {
	var opts []stream.Option
	if o.Register != nil {
		reg, err := byteValue("register", *o.Register)
		if err != nil {
			return nil, err
		}
		opts = append(opts, stream.WithRegister(reg))
	}
	if len(o.Payload) > 0 {
		payload := make([]byte, len(o.Payload))
		for i, v := range o.Payload {
			b, err := byteValue("payload", v)
			if err != nil {
				return nil, err
			}
			payload[i] = b
		}
		opts = append(opts, stream.WithPayload(payload))
	}
	if o.InterruptPin != nil {
		opts = append(opts, stream.WithInterruptPin(*o.InterruptPin))
	}
	if o.Timer != "" {
		d, err := time.ParseDuration(o.Timer)
		if err != nil {
			return nil, fmt.Errorf("timer: %w", err)
		}
		opts = append(opts, stream.WithTimer(d))
	}
	if len(o.Regions) > 0 {
		regions := make([]stream.Region, len(o.Regions))
		for i, r := range o.Regions {
			start, err := byteValue("region start", r.Start)
			if err != nil {
				return nil, err
			}
			regions[i] = stream.Region{Start: start, Size: r.Size, Discard: r.Discard}
		}
		opts = append(opts, stream.WithRegions(regions...))
	}
	if len(o.ADCPins) > 0 {
		opts = append(opts, stream.WithADCPins(o.ADCPins...))
	}
	if o.IDBytes != nil {
		opts = append(opts, stream.WithIDBytes(*o.IDBytes))
	}
	return opts, nil
}

// PinResolver returns the board wiring as a stream.PinResolver
func (c *Config) PinResolver() (stream.StaticPins, error) {
	pins := stream.StaticPins{
		Interrupt: make(map[int]uint8),
		ADC:       make(map[int]uint8),
	}
	for _, p := range c.Pins.Interrupt {
		gpio, err := byteValue("pins.interrupt gpio", p.GPIO)
		if err != nil {
			return pins, err
		}
		pins.Interrupt[p.Index] = gpio
	}
	for _, p := range c.Pins.ADC {
		gpio, err := byteValue("pins.adc gpio", p.GPIO)
		if err != nil {
			return pins, err
		}
		pins.ADC[p.Index] = gpio
	}
	return pins, nil
}

// Sensor returns the named sensor
func (c *Config) Sensor(name string) (*stream.Sensor, error) {
	for _, s := range c.Sensors {
		if s.Name == name {
			return s.ToSensor()
		}
	}
	return nil, fmt.Errorf("unknown sensor %q", name)
}

// Define registers every configured stream on the session. Each sensor is
// converted once so definitions of one sensor share it.
func (c *Config) Define(s *stream.Session) error {
	sensors := map[string]*stream.Sensor{}
	for i, st := range c.Streams {
		sensor, ok := sensors[st.Sensor]
		if !ok {
			var err error
			if sensor, err = c.Sensor(st.Sensor); err != nil {
				return fmt.Errorf("streams[%d]: %w", i, err)
			}
			sensors[st.Sensor] = sensor
		}
		opts, err := st.Options()
		if err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
		if _, err := s.DefineRequest(sensor, st.Format, st.Header, opts...); err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
	}
	return nil
}
