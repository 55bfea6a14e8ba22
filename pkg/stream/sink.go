// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

import "time"

// Sample is one decoded frame
type Sample struct {
	Key    Key
	Time   time.Time
	Labels []string
	Values []float64
}

// Sink receives the decoded stream. A session calls AddChannel once per
// definition, then Start, Feed for each sample and finally Stop.
type Sink interface {
	AddChannel(labels []string, key Key)
	Start() error
	Feed(s Sample) error
	Stop() error
}

type nopSink struct{}

func (nopSink) AddChannel([]string, Key) {}
func (nopSink) Start() error             { return nil }
func (nopSink) Feed(Sample) error        { return nil }
func (nopSink) Stop() error              { return nil }
