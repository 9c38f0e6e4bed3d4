/*
 * Copyright 2024 The Easel Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package prometheus provides a Prometheus metrics exporter.
package prometheus

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/easel-team/easel/internal/version"
)

const (
	namespace      = "easel"
	msgTypeLabel   = "msg_type"
	eventTypeLabel = "event_type"
	classLabel     = "class"
	taskTypeLabel  = "task_type"
	resultLabel    = "result"
)

// Metrics manages the metric information that Easel is trying to measure.
type Metrics struct {
	registry *prometheus.Registry

	serverVersion *prometheus.GaugeVec

	connectionsTotal       prometheus.Gauge
	roomsTotal             prometheus.Gauge
	messagesReceivedTotal  *prometheus.CounterVec
	rateLimitDroppedTotal  *prometheus.CounterVec
	eventsSequencedTotal   *prometheus.CounterVec
	sequenceSeconds        prometheus.Histogram
	compactionSeconds      prometheus.Histogram
	compactionsTotal       *prometheus.CounterVec
	snapshotBytesTotal     prometheus.Counter
	backgroundGoroutines   *prometheus.GaugeVec
	cursorBatchesSentTotal prometheus.Counter
}

// NewMetrics creates a new instance of Metrics.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	metrics := &Metrics{
		registry: reg,
		serverVersion: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "version",
			Help:      "Which version is running. 1 for 'server_version' label with current version.",
		}, []string{"server_version"}),
		connectionsTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections_total",
			Help:      "The current number of live WebSocket connections.",
		}),
		roomsTotal: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rooms_total",
			Help:      "The current number of live board rooms.",
		}),
		messagesReceivedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "messages_received_total",
			Help:      "Total number of inbound frames by message type.",
		}, []string{msgTypeLabel}),
		rateLimitDroppedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "rate_limit_dropped_total",
			Help:      "Total number of messages dropped by the rate limiter.",
		}, []string{classLabel}),
		eventsSequencedTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boards",
			Name:      "events_sequenced_total",
			Help:      "Total number of draw events durably sequenced.",
		}, []string{eventTypeLabel}),
		sequenceSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "boards",
			Name:      "sequence_seconds",
			Help:      "The time spent reserving and persisting one event.",
		}),
		compactionSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "boards",
			Name:      "compaction_seconds",
			Help:      "The time spent rendering and storing one snapshot.",
		}),
		compactionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boards",
			Name:      "compactions_total",
			Help:      "Total number of snapshot compactions by result.",
		}, []string{resultLabel}),
		snapshotBytesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "boards",
			Name:      "snapshot_bytes_total",
			Help:      "Total encoded snapshot bytes written to the store.",
		}),
		backgroundGoroutines: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "background",
			Name:      "goroutines_total",
			Help:      "The total number of background routines attached by task type.",
		}, []string{taskTypeLabel}),
		cursorBatchesSentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "cursor_batches_sent_total",
			Help:      "Total number of CURSOR_BATCH broadcasts.",
		}),
	}

	metrics.serverVersion.With(prometheus.Labels{
		"server_version": version.Version,
	}).Set(1)

	return metrics, nil
}

// AddConnections adds a live connection to the gauge.
func (m *Metrics) AddConnections() {
	m.connectionsTotal.Inc()
}

// RemoveConnections removes a live connection from the gauge.
func (m *Metrics) RemoveConnections() {
	m.connectionsTotal.Dec()
}

// SetRooms sets the current number of live rooms.
func (m *Metrics) SetRooms(count int) {
	m.roomsTotal.Set(float64(count))
}

// AddMessagesReceived counts one inbound frame of the given type.
func (m *Metrics) AddMessagesReceived(msgType string) {
	m.messagesReceivedTotal.With(prometheus.Labels{msgTypeLabel: msgType}).Inc()
}

// AddRateLimitDropped counts one message dropped by the limiter.
func (m *Metrics) AddRateLimitDropped(class string) {
	m.rateLimitDroppedTotal.With(prometheus.Labels{classLabel: class}).Inc()
}

// AddEventsSequenced counts one durably sequenced event.
func (m *Metrics) AddEventsSequenced(eventType string) {
	m.eventsSequencedTotal.With(prometheus.Labels{eventTypeLabel: eventType}).Inc()
}

// ObserveSequenceSeconds records the duration of one sequence call.
func (m *Metrics) ObserveSequenceSeconds(seconds float64) {
	m.sequenceSeconds.Observe(seconds)
}

// ObserveCompactionSeconds records the duration of one compaction.
func (m *Metrics) ObserveCompactionSeconds(seconds float64) {
	m.compactionSeconds.Observe(seconds)
}

// AddCompactions counts one compaction with the given result.
func (m *Metrics) AddCompactions(result string) {
	m.compactionsTotal.With(prometheus.Labels{resultLabel: result}).Inc()
}

// AddSnapshotBytes counts encoded snapshot bytes written to the store.
func (m *Metrics) AddSnapshotBytes(bytes int) {
	m.snapshotBytesTotal.Add(float64(bytes))
}

// AddCursorBatchesSent counts one cursor batch broadcast.
func (m *Metrics) AddCursorBatchesSent() {
	m.cursorBatchesSentTotal.Inc()
}

// AddBackgroundGoroutines adds a routine of the given task type to the gauge.
func (m *Metrics) AddBackgroundGoroutines(taskType string) {
	m.backgroundGoroutines.With(prometheus.Labels{taskTypeLabel: taskType}).Inc()
}

// RemoveBackgroundGoroutines removes a routine of the given task type from
// the gauge.
func (m *Metrics) RemoveBackgroundGoroutines(taskType string) {
	m.backgroundGoroutines.With(prometheus.Labels{taskTypeLabel: taskType}).Dec()
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
