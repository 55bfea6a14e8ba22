// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/Thermoquad/evkit/pkg/evkit"
)

// Adapter is the transport a session drives. *evkit.Link implements it.
//
// Receive blocks until a packet of type expect arrives (evkit.MsgAny for
// stream data). On timeout it returns a nil payload and a nil error.
type Adapter interface {
	Send(req *evkit.Packet) error
	Receive(expect uint8) (key int, payload []byte, err error)
}

// Key attributes an indication to its request definition: the macro id on
// engine 2 firmware, the interrupt index on engine 1.
type Key int

// String returns the key in decimal
func (k Key) String() string { return strconv.Itoa(int(k)) }

// EngineVersion is the board's protocol engine generation
type EngineVersion int

// Engine generations
const (
	EngineLegacy EngineVersion = 1 // per-pin interrupt payloads
	EngineMacro  EngineVersion = 2 // generalized macros
)

// Strategy realizes request definitions on one engine generation
type Strategy interface {
	Version() EngineVersion
	Define(d *RequestDefinition) error
	Arm() error
	Disarm() error
}

// NewStrategy selects the strategy for an engine generation
func NewStrategy(v EngineVersion, a Adapter, routes *Routes, logger log.FieldLogger) (Strategy, error) {
	switch v {
	case EngineLegacy:
		return newLegacyStrategy(a, routes, logger), nil
	case EngineMacro:
		return newGeneralizedStrategy(a, routes, logger), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEngine, v)
	}
}

// Routes maps attribution keys to definitions, remembering registration order
type Routes struct {
	keys []Key
	defs map[Key]*RequestDefinition
}

// NewRoutes creates an empty route table
func NewRoutes() *Routes {
	return &Routes{defs: make(map[Key]*RequestDefinition)}
}

func (r *Routes) add(k Key, d *RequestDefinition) error {
	if _, ok := r.defs[k]; ok {
		return fmt.Errorf("%w: key %d assigned twice", ErrProtocolSequence, k)
	}
	r.keys = append(r.keys, k)
	r.defs[k] = d
	return nil
}

// Lookup returns the definition registered under k
func (r *Routes) Lookup(k Key) (*RequestDefinition, bool) {
	d, ok := r.defs[k]
	return d, ok
}

// Keys returns the keys in registration order
func (r *Routes) Keys() []Key {
	out := make([]Key, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of routes
func (r *Routes) Len() int { return len(r.keys) }

func (r *Routes) reset() {
	r.keys = nil
	r.defs = make(map[Key]*RequestDefinition)
}

// exchange sends req, records it on d and waits for the matching response.
// A missing response is a sequencing error.
func exchange(a Adapter, d *RequestDefinition, req *evkit.Packet) (int, error) {
	name := evkit.FormatMessageType(req.Type())
	if err := a.Send(req); err != nil {
		return 0, fmt.Errorf("send %s: %w", name, err)
	}
	if d != nil {
		d.record(req)
	}
	key, payload, err := a.Receive(evkit.ResponseFor(req.Type()))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrProtocolSequence, name, err)
	}
	if payload == nil {
		return 0, fmt.Errorf("%w: no response to %s", ErrProtocolSequence, name)
	}
	return key, nil
}
