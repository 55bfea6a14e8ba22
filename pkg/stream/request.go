// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// Region is one contiguous register block read by a macro action.
// Discarded regions are read from the sensor (to clear latches, for
// example) but are not part of the indication frame.
type Region struct {
	Start   uint8
	Size    int
	Discard bool
}

// Option configures a request definition
type Option func(*requestOptions)

type requestOptions struct {
	register    uint8
	hasRegister bool
	payload     []byte
	pin         int
	hasPin      bool
	timer       time.Duration
	hasTimer    bool
	regions     []Region
	adcPins     []int
	idBytes     int
}

// WithRegister sets the first register of a single block read
func WithRegister(reg uint8) Option {
	return func(o *requestOptions) {
		o.register = reg
		o.hasRegister = true
	}
}

// WithPayload supplies a pre-built engine 1 interrupt payload
func WithPayload(payload []byte) Option {
	return func(o *requestOptions) {
		o.payload = append([]byte(nil), payload...)
	}
}

// WithInterruptPin triggers the request on the sensor's logical interrupt pin
func WithInterruptPin(index int) Option {
	return func(o *requestOptions) {
		o.pin = index
		o.hasPin = true
	}
}

// WithTimer triggers the request periodically. The period is sent in whole
// milliseconds.
func WithTimer(period time.Duration) Option {
	return func(o *requestOptions) {
		o.timer = period
		o.hasTimer = true
	}
}

// WithRegions reads several register blocks per trigger
func WithRegions(regions ...Region) Option {
	return func(o *requestOptions) {
		o.regions = append([]Region(nil), regions...)
	}
}

// WithADCPins overrides the logical ADC pins converted per trigger
func WithADCPins(pins ...int) Option {
	return func(o *requestOptions) {
		o.adcPins = append([]int(nil), pins...)
	}
}

// WithIDBytes sets how many leading frame bytes the board fills in itself
// (the channel id) rather than reading from the sensor. Defaults to 1.
func WithIDBytes(n int) Option {
	return func(o *requestOptions) {
		o.idBytes = n
	}
}

// RequestDefinition is one configured sensor stream: what the board reads,
// what fires the read and how the resulting frame decodes.
type RequestDefinition struct {
	sensor   *Sensor
	resource Resource
	layout   *FrameLayout
	header   string
	labels   []string
	axis     *AxisMapper

	register    uint8
	hasRegister bool
	payload     []byte
	pinIndex    int
	gpioPin     uint8
	hasPin      bool
	timer       time.Duration
	hasTimer    bool
	regions     []Region
	adcPins     []uint8
	idBytes     int

	issued []*evkit.Packet
}

// NewRequestDefinition validates a stream definition. All configuration
// errors are reported here, before anything is sent to the board.
func NewRequestDefinition(sensor *Sensor, pins PinResolver, format, header string, opts ...Option) (*RequestDefinition, error) {
	if sensor == nil {
		return nil, configError("sensor", nil, "no sensor configured")
	}

	o := requestOptions{idBytes: 1}
	for _, opt := range opts {
		opt(&o)
	}

	layout, err := ParseFrameLayout(format)
	if err != nil {
		return nil, &ConfigError{Field: "frame format", Value: format, Err: err}
	}
	labels := strings.Split(header, "!")
	if len(labels) != layout.Values() {
		return nil, configError("header", header,
			fmt.Sprintf("%d labels for %d values of %q", len(labels), layout.Values(), format))
	}

	d := &RequestDefinition{
		sensor:      sensor,
		resource:    sensor.Resource,
		layout:      layout,
		header:      header,
		labels:      labels,
		register:    o.register,
		hasRegister: o.hasRegister,
		payload:     o.payload,
		pinIndex:    o.pin,
		hasPin:      o.hasPin,
		timer:       o.timer,
		hasTimer:    o.hasTimer,
		regions:     o.regions,
		idBytes:     o.idBytes,
	}

	if d.idBytes < 0 || d.idBytes > layout.Size() {
		return nil, configError("id bytes", d.idBytes, fmt.Sprintf("frame is %d bytes", layout.Size()))
	}

	switch {
	case d.hasPin && d.hasTimer:
		return nil, configError("trigger", "pin and timer", "exactly one trigger allowed")
	case !d.hasPin && !d.hasTimer:
		return nil, configError("trigger", "none", "an interrupt pin or a timer is required")
	}

	if d.hasPin {
		if !sensor.SupportsIntPin(d.pinIndex) {
			return nil, &ConfigError{
				Field:     "interrupt pin",
				Value:     d.pinIndex,
				Reason:    fmt.Sprintf("not supported by %s", sensor.Name),
				Supported: sensor.IntPins,
			}
		}
		if pins == nil {
			return nil, configError("interrupt pin", d.pinIndex, "no pin resolver")
		}
		d.gpioPin, err = pins.InterruptPin(sensor, d.pinIndex)
		if err != nil {
			return nil, &ConfigError{Field: "interrupt pin", Value: d.pinIndex, Err: err}
		}
	}
	if d.hasTimer && d.timer < time.Millisecond {
		return nil, configError("timer", d.timer, "period must be at least 1ms")
	}

	if d.hasRegister && d.payload != nil {
		return nil, configError("register", d.register, "register and payload are exclusive")
	}
	if len(d.regions) > 0 {
		if d.hasRegister || d.payload != nil {
			return nil, configError("regions", d.regions, "regions replace register and payload")
		}
		total := 0
		for _, r := range d.regions {
			if r.Size <= 0 || r.Size > 0xFF {
				return nil, configError("region size", r.Size, "must be 1..255")
			}
			if !r.Discard {
				total += r.Size
			}
		}
		if total != d.ReadSize() {
			return nil, configError("regions", d.regions,
				fmt.Sprintf("kept regions read %d bytes, frame needs %d", total, d.ReadSize()))
		}
	}

	if d.resource.Bus == BusADC {
		logical := o.adcPins
		if len(logical) == 0 {
			logical = d.resource.ADC.Pins
		}
		if len(logical) == 0 {
			return nil, configError("adc pins", nil, "no ADC pins configured")
		}
		if pins == nil {
			return nil, configError("adc pins", logical, "no pin resolver")
		}
		for _, idx := range logical {
			p, err := pins.ADCPin(sensor, idx)
			if err != nil {
				return nil, &ConfigError{Field: "adc pin", Value: idx, Err: err}
			}
			d.adcPins = append(d.adcPins, p)
		}
	}

	d.axis, err = NewAxisMapper(labels, d.resource.AxisMap)
	if err != nil {
		return nil, &ConfigError{Field: "axis map", Value: d.resource.AxisMap, Err: err}
	}
	return d, nil
}

// Sensor returns the sensor the definition reads
func (d *RequestDefinition) Sensor() *Sensor { return d.sensor }

// Resource returns the resource snapshot taken at definition time
func (d *RequestDefinition) Resource() Resource { return d.resource }

// Header returns the "!" delimited header
func (d *RequestDefinition) Header() string { return d.header }

// Labels returns the header labels, one per decoded value
func (d *RequestDefinition) Labels() []string { return d.labels }

// Layout returns the frame layout
func (d *RequestDefinition) Layout() *FrameLayout { return d.layout }

// FrameSize returns the expected indication length in bytes
func (d *RequestDefinition) FrameSize() int { return d.layout.Size() }

// ReadSize returns how many frame bytes come from the sensor
func (d *RequestDefinition) ReadSize() int { return d.layout.Size() - d.idBytes }

// InterruptPin returns the logical and physical trigger pin
func (d *RequestDefinition) InterruptPin() (index int, gpio uint8, ok bool) {
	return d.pinIndex, d.gpioPin, d.hasPin
}

// Timer returns the poll period
func (d *RequestDefinition) Timer() (time.Duration, bool) { return d.timer, d.hasTimer }

// Register returns the first register of a single block read
func (d *RequestDefinition) Register() (uint8, bool) { return d.register, d.hasRegister }

// Regions returns the register blocks read per trigger. A plain register
// definition reads one block covering the whole sensor part of the frame.
func (d *RequestDefinition) Regions() []Region {
	if len(d.regions) > 0 {
		return d.regions
	}
	if d.hasRegister {
		return []Region{{Start: d.register, Size: d.ReadSize()}}
	}
	return nil
}

// ADCPins returns the resolved ADC GPIO numbers
func (d *RequestDefinition) ADCPins() []uint8 { return d.adcPins }

// Issued returns every request sent to the board for this definition
func (d *RequestDefinition) Issued() []*evkit.Packet {
	out := make([]*evkit.Packet, len(d.issued))
	copy(out, d.issued)
	return out
}

func (d *RequestDefinition) record(p *evkit.Packet) {
	d.issued = append(d.issued, p)
}

// Decode unpacks a frame and applies the sensor's axis map
func (d *RequestDefinition) Decode(frame []byte) ([]float64, error) {
	values, err := d.layout.Decode(frame)
	if err != nil {
		return nil, err
	}
	return d.axis.Map(values), nil
}

// String describes the definition for logs
func (d *RequestDefinition) String() string {
	trigger := fmt.Sprintf("timer %s", d.timer)
	if d.hasPin {
		trigger = fmt.Sprintf("int%d (gpio %d)", d.pinIndex, d.gpioPin)
	}
	return fmt.Sprintf("%s %s %q %s", d.sensor.Name, d.resource.Bus, d.layout.Format(), trigger)
}
