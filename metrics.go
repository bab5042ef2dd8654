// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"fmt"
	"sync/atomic"
)

// Metrics holds per-instance observability counters for a ring, shared
// ring, or RUDP session. All fields are updated with plain atomics so
// they can be read concurrently without locking; call Snapshot for a
// consistent-enough point-in-time view.
//
// Metrics is deliberately not wired into the hot claim/publish/consume
// path by the ring engines themselves — incrementing a counter on every
// slot would undo the point of a lock-free ring. Callers that want
// per-message counts should increment Messages/Bytes from their own
// publish/consume loop; the RUDP sender and receiver do this for
// send/receive/backpressure/retransmit automatically, since those
// already cross a syscall boundary.
type Metrics struct {
	messagesSent     atomic.Uint64
	messagesReceived atomic.Uint64
	bytesSent        atomic.Uint64
	bytesReceived    atomic.Uint64
	backpressure     atomic.Uint64
	retransmits      atomic.Uint64
	naksSent         atomic.Uint64
	naksReceived     atomic.Uint64
	checksumFailures atomic.Uint64
}

// NewMetrics returns a zeroed Metrics instance.
func NewMetrics() *Metrics { return &Metrics{} }

// RecordSend accounts for one message of n bytes handed to a producer or
// RUDP sender.
func (m *Metrics) RecordSend(n int) {
	m.messagesSent.Add(1)
	m.bytesSent.Add(uint64(n))
}

// RecordReceive accounts for one message of n bytes delivered to a
// consumer or RUDP receiver's application.
func (m *Metrics) RecordReceive(n int) {
	m.messagesReceived.Add(1)
	m.bytesReceived.Add(uint64(n))
}

// RecordBackpressure accounts for one claim or send attempt that found no
// capacity.
func (m *Metrics) RecordBackpressure() { m.backpressure.Add(1) }

// RecordRetransmit accounts for one RUDP packet retransmission.
func (m *Metrics) RecordRetransmit() { m.retransmits.Add(1) }

// RecordNakSent accounts for one NAK emitted by a RUDP receiver.
func (m *Metrics) RecordNakSent() { m.naksSent.Add(1) }

// RecordNakReceived accounts for one NAK observed by a RUDP sender.
func (m *Metrics) RecordNakReceived() { m.naksReceived.Add(1) }

// RecordChecksumFailure accounts for one packet or slot dropped for
// failing its checksum.
func (m *Metrics) RecordChecksumFailure() { m.checksumFailures.Add(1) }

// MetricsSnapshot is a consistent-enough point-in-time copy of Metrics,
// safe to pass around, log, or export without further synchronization.
type MetricsSnapshot struct {
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
	Backpressure     uint64
	Retransmits      uint64
	NaksSent         uint64
	NaksReceived     uint64
	ChecksumFailures uint64
}

// Snapshot reads all counters into a MetricsSnapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		MessagesSent:     m.messagesSent.Load(),
		MessagesReceived: m.messagesReceived.Load(),
		BytesSent:        m.bytesSent.Load(),
		BytesReceived:    m.bytesReceived.Load(),
		Backpressure:     m.backpressure.Load(),
		Retransmits:      m.retransmits.Load(),
		NaksSent:         m.naksSent.Load(),
		NaksReceived:     m.naksReceived.Load(),
		ChecksumFailures: m.checksumFailures.Load(),
	}
}

// Reset zeroes all counters. Intended for test harnesses; production code
// should prefer taking snapshots over resetting live counters.
func (m *Metrics) Reset() {
	m.messagesSent.Store(0)
	m.messagesReceived.Store(0)
	m.bytesSent.Store(0)
	m.bytesReceived.Store(0)
	m.backpressure.Store(0)
	m.retransmits.Store(0)
	m.naksSent.Store(0)
	m.naksReceived.Store(0)
	m.checksumFailures.Store(0)
}

func (s MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"messages sent=%d received=%d bytes sent=%d received=%d backpressure=%d retransmits=%d naks sent=%d received=%d checksum_failures=%d",
		s.MessagesSent, s.MessagesReceived, s.BytesSent, s.BytesReceived,
		s.Backpressure, s.Retransmits, s.NaksSent, s.NaksReceived, s.ChecksumFailures,
	)
}
