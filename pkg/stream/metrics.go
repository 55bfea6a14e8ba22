// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package stream

// Metrics observes a running session
type Metrics interface {
	SampleDecoded(k Key)
	ReceiveTimeout()
	FrameDropped(k Key)
	Unattributed(k Key)
	SetArmed(armed bool)
}

type nopMetrics struct{}

func (nopMetrics) SampleDecoded(Key) {}
func (nopMetrics) ReceiveTimeout()   {}
func (nopMetrics) FrameDropped(Key)  {}
func (nopMetrics) Unattributed(Key)  {}
func (nopMetrics) SetArmed(bool)     {}
