// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode"
)

// Field kinds of a frame layout
type fieldKind int

const (
	kindPad fieldKind = iota
	kindUint
	kindInt
	kindBool
	kindFloat
)

type layoutField struct {
	kind   fieldKind
	size   int
	offset int
}

// FrameLayout describes how a raw sensor frame decodes into values.
//
// Layouts are written in the struct module notation used by the sensor
// configuration files: an optional byte order prefix followed by type codes,
// each with an optional repeat count. "<BhhhhhhB" is a channel byte, six
// little-endian int16 values and a status byte.
//
//	<  little-endian, no alignment
//	>  big-endian, no alignment
//	!  network order (big-endian), no alignment
//	=  little-endian, no alignment
//	@  native alignment (also the default with no prefix)
//
//	x pad byte, c char, b/B int8/uint8, ? bool, h/H int16/uint16,
//	i/I l/L int32/uint32, q/Q int64/uint64, f float32, d float64
type FrameLayout struct {
	format string
	order  binary.ByteOrder
	fields []layoutField
	size   int
	values int
}

// ParseFrameLayout parses a frame format
func ParseFrameLayout(format string) (*FrameLayout, error) {
	l := &FrameLayout{format: format, order: binary.LittleEndian}
	aligned := true

	spec := format
	if len(spec) > 0 {
		switch spec[0] {
		case '<', '=':
			aligned = false
			spec = spec[1:]
		case '>', '!':
			l.order = binary.BigEndian
			aligned = false
			spec = spec[1:]
		case '@':
			spec = spec[1:]
		}
	}

	count := -1
	for i := 0; i < len(spec); i++ {
		c := rune(spec[i])
		if unicode.IsSpace(c) {
			continue
		}
		if unicode.IsDigit(c) {
			if count < 0 {
				count = 0
			}
			count = count*10 + int(c-'0')
			continue
		}

		kind, size, ok := formatCode(byte(c))
		if !ok {
			return nil, fmt.Errorf("frame format %q: bad char %q at %d", format, c, i)
		}
		n := 1
		if count >= 0 {
			n = count
		}
		count = -1

		if aligned && kind != kindPad && size > 1 && l.size%size != 0 {
			l.size += size - l.size%size
		}
		for j := 0; j < n; j++ {
			if kind != kindPad {
				l.fields = append(l.fields, layoutField{kind: kind, size: size, offset: l.size})
				l.values++
			}
			l.size += size
		}
	}
	if count >= 0 {
		return nil, fmt.Errorf("frame format %q: repeat count without type code", format)
	}
	if l.values == 0 {
		return nil, fmt.Errorf("frame format %q: no values", format)
	}
	return l, nil
}

func formatCode(c byte) (fieldKind, int, bool) {
	switch c {
	case 'x':
		return kindPad, 1, true
	case 'c', 'B':
		return kindUint, 1, true
	case 'b':
		return kindInt, 1, true
	case '?':
		return kindBool, 1, true
	case 'h':
		return kindInt, 2, true
	case 'H':
		return kindUint, 2, true
	case 'i', 'l':
		return kindInt, 4, true
	case 'I', 'L':
		return kindUint, 4, true
	case 'q':
		return kindInt, 8, true
	case 'Q':
		return kindUint, 8, true
	case 'f':
		return kindFloat, 4, true
	case 'd':
		return kindFloat, 8, true
	}
	return 0, 0, false
}

// Format returns the source format string
func (l *FrameLayout) Format() string { return l.format }

// Size returns the frame length in bytes
func (l *FrameLayout) Size() int { return l.size }

// Values returns the number of decoded values per frame
func (l *FrameLayout) Values() int { return l.values }

// Decode unpacks one frame. The frame must be exactly Size bytes long.
func (l *FrameLayout) Decode(frame []byte) ([]float64, error) {
	if len(frame) != l.size {
		return nil, fmt.Errorf("frame is %d bytes, layout %q needs %d", len(frame), l.format, l.size)
	}

	out := make([]float64, 0, l.values)
	for _, f := range l.fields {
		b := frame[f.offset : f.offset+f.size]
		var u uint64
		switch f.size {
		case 1:
			u = uint64(b[0])
		case 2:
			u = uint64(l.order.Uint16(b))
		case 4:
			u = uint64(l.order.Uint32(b))
		case 8:
			u = l.order.Uint64(b)
		}

		switch f.kind {
		case kindUint:
			out = append(out, float64(u))
		case kindInt:
			shift := uint(64 - 8*f.size)
			out = append(out, float64(int64(u<<shift)>>shift))
		case kindBool:
			if u != 0 {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		case kindFloat:
			if f.size == 4 {
				out = append(out, float64(math.Float32frombits(uint32(u))))
			} else {
				out = append(out, math.Float64frombits(u))
			}
		}
	}
	return out, nil
}
