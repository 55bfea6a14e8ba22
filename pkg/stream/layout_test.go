// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"testing"
)

// ============================================================
// Frame Layout Tests
// ============================================================

func TestParseFrameLayout(t *testing.T) {
	tests := []struct {
		format string
		size   int
		values int
	}{
		{"<Bhhh", 7, 4},
		{"<BhhhhhhB", 14, 8},
		{">H", 2, 1},
		{"!hh", 4, 2},
		{"<2h", 4, 2},
		{"<xB", 2, 1},
		{"<3x2B", 5, 2},
		{"<f d", 12, 2},
		{"<qQ", 16, 2},
		{"Bhhh", 8, 4},   // native alignment pads after the byte
		{"@BI", 8, 2},    // native alignment
		{"=BI", 5, 2},    // standard sizes, no padding
		{"<?cbB", 4, 4},  // single byte codes
		{"<iIlL", 16, 4}, // 32-bit codes
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			l, err := ParseFrameLayout(tt.format)
			if err != nil {
				t.Fatalf("ParseFrameLayout(%q): %v", tt.format, err)
			}
			if l.Size() != tt.size {
				t.Errorf("Size() = %d, want %d", l.Size(), tt.size)
			}
			if l.Values() != tt.values {
				t.Errorf("Values() = %d, want %d", l.Values(), tt.values)
			}
		})
	}
}

func TestParseFrameLayoutErrors(t *testing.T) {
	for _, format := range []string{"", "<", "<Z", "<3", "<xx"} {
		if _, err := ParseFrameLayout(format); err == nil {
			t.Errorf("ParseFrameLayout(%q) accepted an invalid format", format)
		}
	}
}

func TestFrameLayoutDecode(t *testing.T) {
	tests := []struct {
		name   string
		format string
		frame  []byte
		want   []float64
	}{
		{
			name:   "channel and three axes",
			format: "<Bhhh",
			frame:  []byte{0x01, 0x10, 0x00, 0x20, 0x00, 0x30, 0x00},
			want:   []float64{1, 16, 32, 48},
		},
		{
			name:   "negative big-endian",
			format: ">h",
			frame:  []byte{0xFF, 0xFE},
			want:   []float64{-2},
		},
		{
			name:   "signed byte",
			format: "<b",
			frame:  []byte{0x80},
			want:   []float64{-128},
		},
		{
			name:   "unsigned 16",
			format: "<H",
			frame:  []byte{0xFF, 0xFF},
			want:   []float64{65535},
		},
		{
			name:   "float32",
			format: "<f",
			frame:  []byte{0x00, 0x00, 0xC0, 0x3F},
			want:   []float64{1.5},
		},
		{
			name:   "int64 minus one",
			format: "<q",
			frame:  []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			want:   []float64{-1},
		},
		{
			name:   "bool and pad",
			format: "<?x?",
			frame:  []byte{0x05, 0xAA, 0x00},
			want:   []float64{1, 0},
		},
		{
			name:   "native alignment skips pad byte",
			format: "Bh",
			frame:  []byte{0x02, 0xEE, 0x03, 0x00},
			want:   []float64{2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := ParseFrameLayout(tt.format)
			if err != nil {
				t.Fatalf("ParseFrameLayout: %v", err)
			}
			got, err := l.Decode(tt.frame)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Decode returned %d values, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("value[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFrameLayoutDecodeWrongLength(t *testing.T) {
	l, err := ParseFrameLayout("<Bhhh")
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 6, 8} {
		if _, err := l.Decode(make([]byte, n)); err == nil {
			t.Errorf("Decode accepted a %d byte frame", n)
		}
	}
}
