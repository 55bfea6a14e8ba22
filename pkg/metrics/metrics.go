// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports stream session counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/evkit/pkg/stream"
)

// Collector implements stream.Metrics with Prometheus collectors
type Collector struct {
	samples      *prometheus.CounterVec
	timeouts     prometheus.Counter
	dropped      *prometheus.CounterVec
	unattributed prometheus.Counter
	armed        prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evkit_samples_total",
			Help: "Decoded samples delivered to the sink.",
		}, []string{"key"}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evkit_receive_timeouts_total",
			Help: "Receive calls that timed out without stream data.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evkit_frames_dropped_total",
			Help: "Frames dropped for a length or decode mismatch.",
		}, []string{"key"}),
		unattributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evkit_unattributed_frames_total",
			Help: "Frames whose key matches no request definition.",
		}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evkit_session_armed",
			Help: "1 while the board is armed for streaming.",
		}),
	}

	for _, col := range []prometheus.Collector{c.samples, c.timeouts, c.dropped, c.unattributed, c.armed} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SampleDecoded implements stream.Metrics
func (c *Collector) SampleDecoded(k stream.Key) {
	c.samples.WithLabelValues(k.String()).Inc()
}

// ReceiveTimeout implements stream.Metrics
func (c *Collector) ReceiveTimeout() {
	c.timeouts.Inc()
}

// FrameDropped implements stream.Metrics
func (c *Collector) FrameDropped(k stream.Key) {
	c.dropped.WithLabelValues(k.String()).Inc()
}

// Unattributed implements stream.Metrics
func (c *Collector) Unattributed(stream.Key) {
	c.unattributed.Inc()
}

// SetArmed implements stream.Metrics
func (c *Collector) SetArmed(armed bool) {
	if armed {
		c.armed.Set(1)
	} else {
		c.armed.Set(0)
	}
}
