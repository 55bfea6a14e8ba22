// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"
	"strings"
)

// AxisMap reorders and negates the x/y/z components of a three axis reading
// so the values match the board's physical orientation.
//
// Output axis i takes input axis Perm[i], negated when Negate[i] is set.
// The zero AxisMap is the identity.
type AxisMap struct {
	Perm   [3]int
	Negate [3]bool
}

// IdentityAxisMap leaves readings untouched
var IdentityAxisMap = AxisMap{Perm: [3]int{0, 1, 2}}

// ParseAxisMap parses a map written as three axis names, e.g. ["y", "-x", "z"]
func ParseAxisMap(axes []string) (AxisMap, error) {
	var m AxisMap
	if len(axes) != 3 {
		return m, fmt.Errorf("axis map needs exactly 3 entries, got %d", len(axes))
	}
	for i, a := range axes {
		a = strings.ToLower(strings.TrimSpace(a))
		if strings.HasPrefix(a, "-") {
			m.Negate[i] = true
			a = a[1:]
		} else {
			a = strings.TrimPrefix(a, "+")
		}
		switch a {
		case "x":
			m.Perm[i] = 0
		case "y":
			m.Perm[i] = 1
		case "z":
			m.Perm[i] = 2
		default:
			return m, fmt.Errorf("axis map entry %d: unknown axis %q", i, axes[i])
		}
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// Validate checks that Perm is a permutation of the three axes
func (m AxisMap) Validate() error {
	var seen [3]bool
	for i, p := range m.Perm {
		if p < 0 || p > 2 {
			return fmt.Errorf("axis map entry %d: index %d out of range", i, p)
		}
		if seen[p] {
			return fmt.Errorf("axis map references axis %d twice", p)
		}
		seen[p] = true
	}
	return nil
}

// IsIdentity reports whether the map changes nothing
func (m AxisMap) IsIdentity() bool {
	return m == IdentityAxisMap
}

// String formats the map the way ParseAxisMap reads it
func (m AxisMap) String() string {
	names := [3]string{"x", "y", "z"}
	parts := make([]string, 3)
	for i := range m.Perm {
		if m.Negate[i] {
			parts[i] = "-" + names[m.Perm[i]]
		} else {
			parts[i] = names[m.Perm[i]]
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// AxisMapper applies an AxisMap to every x/y/z triplet of a decoded frame.
// Triplets are found in the header labels: three consecutive labels sharing a
// prefix and ending in x, y and z (an optional "_" separator is allowed).
// Values outside a triplet pass through.
type AxisMapper struct {
	m      AxisMap
	groups [][3]int
}

// NewAxisMapper locates the axis triplets in labels. It fails when the map is
// not a permutation, when an axis group in the header is incomplete, or when a
// reorienting map meets a header without any axis group.
func NewAxisMapper(labels []string, m AxisMap) (*AxisMapper, error) {
	if m == (AxisMap{}) {
		m = IdentityAxisMap
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	mapper := &AxisMapper{m: m}
	partial := map[string]int{}
	for i := 0; i < len(labels); i++ {
		prefix, axis, ok := splitAxisLabel(labels[i])
		if !ok {
			continue
		}
		if axis == 0 && i+2 < len(labels) {
			py, ay, oky := splitAxisLabel(labels[i+1])
			pz, az, okz := splitAxisLabel(labels[i+2])
			if oky && okz && py == prefix && pz == prefix && ay == 1 && az == 2 {
				mapper.groups = append(mapper.groups, [3]int{i, i + 1, i + 2})
				i += 2
				continue
			}
		}
		if prefix != "" {
			partial[prefix]++
		}
	}

	// A prefix carrying two axis labels is a triplet with a member missing
	for prefix, n := range partial {
		if n == 2 {
			return nil, fmt.Errorf("header has an incomplete axis group %q: map references 3 axes", prefix)
		}
	}
	if len(mapper.groups) == 0 && !m.IsIdentity() {
		return nil, fmt.Errorf("axis map %s references 3 axes but the header has none", m)
	}
	return mapper, nil
}

func splitAxisLabel(label string) (prefix string, axis int, ok bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return "", 0, false
	}
	switch l[len(l)-1] {
	case 'x':
		axis = 0
	case 'y':
		axis = 1
	case 'z':
		axis = 2
	default:
		return "", 0, false
	}
	prefix = strings.TrimSuffix(l[:len(l)-1], "_")
	return prefix, axis, true
}

// Groups returns the label positions of each axis triplet
func (a *AxisMapper) Groups() [][3]int {
	return a.groups
}

// Map returns a copy of values with every axis triplet remapped
func (a *AxisMapper) Map(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if a.m.IsIdentity() {
		return out
	}
	for _, g := range a.groups {
		if g[2] >= len(values) {
			continue
		}
		for i := 0; i < 3; i++ {
			v := values[g[a.m.Perm[i]]]
			if a.m.Negate[i] {
				v = -v
			}
			out[g[i]] = v
		}
	}
	return out
}
