// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msgchan

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	directionIn  = "in"
	directionOut = "out"
)

// Metrics collects counters of every connection configured with it.
// It is a prometheus.Collector, all methods are safe on a nil *Metrics.
type Metrics struct {
	connections prometheus.Counter
	active      prometheus.Gauge
	messages    *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	teardowns   *prometheus.CounterVec
	drops       prometheus.Counter
}

// NewMetrics allocates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "opened_total",
			Help:      "Total connections constructed.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "active",
			Help:      "Connections not closed yet.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "messages_total",
			Help:      "Messages decoded from (in) or written to (out) the streams.",
		}, []string{"direction"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "bytes_total",
			Help:      "Bytes read from (in) or written to (out) the streams.",
		}, []string{"direction"}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "teardowns_total",
			Help:      "Closed connections by cause.",
		}, []string{"reason"}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages never written.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.connections, m.active, m.messages, m.bytes, m.teardowns, m.drops}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func (m *Metrics) opened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.active.Inc()
}

func (m *Metrics) closed(err error) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.teardowns.WithLabelValues(teardownReason(err)).Inc()
}

func (m *Metrics) message(direction string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(direction).Inc()
}

func (m *Metrics) read(n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(directionIn).Add(float64(n))
}

func (m *Metrics) written(n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(directionOut).Add(float64(n))
}

func (m *Metrics) dropped(n int) {
	if m == nil {
		return
	}
	m.drops.Add(float64(n))
}

func teardownReason(err error) string {
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, ErrCorruptFrame):
		return "corrupt_frame"
	default:
		return "socket_error"
	}
}
