// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "github.com/prometheus/client_golang/prometheus"

// PrometheusExporter periodically mirrors a Metrics snapshot into
// Prometheus counters. It is optional: processes that only want the
// atomic counters never need to construct one.
type PrometheusExporter struct {
	metrics *Metrics
	labels  prometheus.Labels

	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter
	backpressure     prometheus.Counter
	retransmits      prometheus.Counter
	naksSent         prometheus.Counter
	naksReceived     prometheus.Counter
	checksumFailures prometheus.Counter

	prevSnapshot MetricsSnapshot
}

// NewPrometheusExporter registers one counter per Metrics field on reg,
// labeled with instance, and returns an exporter that converts the
// monotonic Metrics counters into Prometheus counter increments on each
// call to Collect.
func NewPrometheusExporter(reg prometheus.Registerer, metrics *Metrics, instance string) *PrometheusExporter {
	labels := prometheus.Labels{"instance": instance}
	newCounter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "flux",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
		reg.MustRegister(c)
		return c
	}
	return &PrometheusExporter{
		metrics:          metrics,
		labels:           labels,
		messagesSent:     newCounter("messages_sent_total", "Messages handed to a producer or RUDP sender."),
		messagesReceived: newCounter("messages_received_total", "Messages delivered to a consumer or RUDP receiver."),
		bytesSent:        newCounter("bytes_sent_total", "Payload bytes sent."),
		bytesReceived:    newCounter("bytes_received_total", "Payload bytes received."),
		backpressure:     newCounter("backpressure_total", "Claim or send attempts that found no capacity."),
		retransmits:      newCounter("retransmits_total", "RUDP packet retransmissions."),
		naksSent:         newCounter("naks_sent_total", "NAKs emitted by a RUDP receiver."),
		naksReceived:     newCounter("naks_received_total", "NAKs observed by a RUDP sender."),
		checksumFailures: newCounter("checksum_failures_total", "Packets or slots dropped for a checksum mismatch."),
	}
}

// Collect reads the current Metrics snapshot and adds the delta since the
// previous call to each Prometheus counter. It is not safe to call
// Collect concurrently from multiple goroutines for the same exporter.
func (e *PrometheusExporter) Collect() {
	s := e.metrics.Snapshot()
	p := e.prevSnapshot

	e.messagesSent.Add(float64(s.MessagesSent - p.MessagesSent))
	e.messagesReceived.Add(float64(s.MessagesReceived - p.MessagesReceived))
	e.bytesSent.Add(float64(s.BytesSent - p.BytesSent))
	e.bytesReceived.Add(float64(s.BytesReceived - p.BytesReceived))
	e.backpressure.Add(float64(s.Backpressure - p.Backpressure))
	e.retransmits.Add(float64(s.Retransmits - p.Retransmits))
	e.naksSent.Add(float64(s.NaksSent - p.NaksSent))
	e.naksReceived.Add(float64(s.NaksReceived - p.NaksReceived))
	e.checksumFailures.Add(float64(s.ChecksumFailures - p.ChecksumFailures))

	e.prevSnapshot = s
}
