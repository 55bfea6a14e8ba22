// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"strings"
	"testing"
)

// ============================================================
// Axis Map Parsing Tests
// ============================================================

func TestParseAxisMap(t *testing.T) {
	tests := []struct {
		axes []string
		want AxisMap
	}{
		{[]string{"x", "y", "z"}, IdentityAxisMap},
		{[]string{"y", "x", "z"}, AxisMap{Perm: [3]int{1, 0, 2}}},
		{[]string{"x", "y", "-z"}, AxisMap{Perm: [3]int{0, 1, 2}, Negate: [3]bool{false, false, true}}},
		{[]string{" +Z", "-X", "y"}, AxisMap{Perm: [3]int{2, 0, 1}, Negate: [3]bool{false, true, false}}},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.axes, ","), func(t *testing.T) {
			got, err := ParseAxisMap(tt.axes)
			if err != nil {
				t.Fatalf("ParseAxisMap: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAxisMap = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseAxisMapErrors(t *testing.T) {
	bad := [][]string{
		{"x", "y"},
		{"x", "y", "z", "x"},
		{"x", "x", "z"},
		{"x", "w", "z"},
	}
	for _, axes := range bad {
		if _, err := ParseAxisMap(axes); err == nil {
			t.Errorf("ParseAxisMap(%v) accepted an invalid map", axes)
		}
	}
}

func TestAxisMapString(t *testing.T) {
	m := AxisMap{Perm: [3]int{1, 0, 2}, Negate: [3]bool{false, false, true}}
	if got := m.String(); got != "[y x -z]" {
		t.Errorf("String() = %q, want %q", got, "[y x -z]")
	}
}

// ============================================================
// Axis Mapper Tests
// ============================================================

func TestAxisMapperSwapXY(t *testing.T) {
	labels := []string{"ch", "ax", "ay", "az"}
	m, err := NewAxisMapper(labels, AxisMap{Perm: [3]int{1, 0, 2}})
	if err != nil {
		t.Fatalf("NewAxisMapper: %v", err)
	}

	got := m.Map([]float64{1, 10, 20, 30})
	want := []float64{1, 20, 10, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAxisMapperNegate(t *testing.T) {
	labels := []string{"ch", "x", "y", "z"}
	m, err := NewAxisMapper(labels, AxisMap{Perm: [3]int{0, 1, 2}, Negate: [3]bool{false, false, true}})
	if err != nil {
		t.Fatalf("NewAxisMapper: %v", err)
	}

	got := m.Map([]float64{1, 10, 20, 30})
	want := []float64{1, 10, 20, -30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAxisMapperMultipleGroups(t *testing.T) {
	labels := strings.Split("ch!ax!ay!az!adp_x!adp_y!adp_z!status", "!")
	m, err := NewAxisMapper(labels, AxisMap{Perm: [3]int{1, 0, 2}})
	if err != nil {
		t.Fatalf("NewAxisMapper: %v", err)
	}
	if len(m.Groups()) != 2 {
		t.Fatalf("found %d axis groups, want 2", len(m.Groups()))
	}

	got := m.Map([]float64{7, 1, 2, 3, 4, 5, 6, 9})
	want := []float64{7, 2, 1, 3, 5, 4, 6, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAxisMapperLeavesInputUntouched(t *testing.T) {
	m, err := NewAxisMapper([]string{"x", "y", "z"}, AxisMap{Perm: [3]int{2, 1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	in := []float64{1, 2, 3}
	m.Map(in)
	if in[0] != 1 || in[2] != 3 {
		t.Errorf("Map modified its input: %v", in)
	}
}

func TestAxisMapperZeroMapIsIdentity(t *testing.T) {
	m, err := NewAxisMapper([]string{"ch", "x", "y", "z"}, AxisMap{})
	if err != nil {
		t.Fatalf("NewAxisMapper: %v", err)
	}
	got := m.Map([]float64{1, 2, 3, 4})
	for i, v := range []float64{1, 2, 3, 4} {
		if got[i] != v {
			t.Errorf("value[%d] = %v, want %v", i, got[i], v)
		}
	}
}

func TestAxisMapperErrors(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		m      AxisMap
	}{
		{"incomplete group", []string{"ch", "ax", "ay"}, IdentityAxisMap},
		{"not a permutation", []string{"x", "y", "z"}, AxisMap{Perm: [3]int{0, 0, 2}}},
		{"index out of range", []string{"x", "y", "z"}, AxisMap{Perm: [3]int{0, 1, 3}}},
		{"map without axis labels", []string{"ch", "xout", "yout", "zout"}, AxisMap{Perm: [3]int{1, 0, 2}, Negate: [3]bool{true, false, false}}},
		{"negation without axis labels", []string{"index", "temp"}, AxisMap{Perm: [3]int{0, 1, 2}, Negate: [3]bool{false, false, true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAxisMapper(tt.labels, tt.m); err == nil {
				t.Error("NewAxisMapper accepted an invalid configuration")
			}
		})
	}
}

func TestAxisMapperIgnoresNonAxisLabels(t *testing.T) {
	m, err := NewAxisMapper([]string{"index", "temp", "status"}, IdentityAxisMap)
	if err != nil {
		t.Fatalf("NewAxisMapper: %v", err)
	}
	if len(m.Groups()) != 0 {
		t.Errorf("found %d axis groups, want 0", len(m.Groups()))
	}
}
