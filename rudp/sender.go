// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rudp

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/flux"
)

type windowSlotState uint8

const (
	slotUnused windowSlotState = iota
	slotUnacked
	slotAcked
)

type windowSlot struct {
	payload       []byte
	seq           uint64
	firstSendTime time.Time
	lastSendTime  time.Time
	retransmits   int
	state         windowSlotState
}

// senderState is the RUDP sender side: an unacked window indexed by
// seq mod W, a cumulative-ACK cursor, and the next sequence to assign.
type senderState struct {
	mu            sync.Mutex
	window        []windowSlot
	nextSendSeq   uint64 // starts at 1; 0 is reserved for control
	cumulativeAck uint64
	lastDataSent  time.Time
}

func newSenderState(windowSize int) *senderState {
	return &senderState{
		window:      make([]windowSlot, windowSize),
		nextSendSeq: 1,
	}
}

func (s *Session) senderLoop() {
	defer s.wg.Done()
	ws := s.opts.WaitStrategy()
	if ws == nil {
		ws = &flux.SpinWait{}
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
			s.retransmitExpired()
			s.maybeHeartbeat()
			continue
		default:
		}
		if s.drainOutgoingOnce() {
			continue
		}
		ws.Wait()
	}
}

// drainOutgoingOnce sends at most one batch of pending application
// payloads, bounded by window/session capacity. Returns true if it made
// any progress, so the caller can avoid invoking its wait strategy.
func (s *Session) drainOutgoingOnce() bool {
	batch := s.outgoing.ReadBatch(s.outCursor, 64)
	if len(batch) == 0 {
		return false
	}

	sent := 0
	for i := range batch {
		if !s.trySendOne(batch[i].Data()) {
			break
		}
		sent++
	}
	if sent > 0 {
		s.outCursor += uint64(sent)
		s.outgoing.UpdateConsumer(s.outCursor)
	}
	return sent > 0
}

// trySendOne assigns a sequence and transmits one DATA packet, provided
// the send window (and, if enabled, the congestion window) has room.
func (s *Session) trySendOne(payload []byte) bool {
	snd := s.sender
	snd.mu.Lock()
	windowFull := snd.nextSendSeq-snd.cumulativeAck >= uint64(len(snd.window))
	congested := s.cc != nil && !s.cc.canSend()
	if windowFull || congested {
		snd.mu.Unlock()
		s.metrics.RecordBackpressure()
		return false
	}

	seq := snd.nextSendSeq
	snd.nextSendSeq++
	now := time.Now()
	idx := seq % uint64(len(snd.window))
	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)
	snd.window[idx] = windowSlot{
		payload:       payloadCopy,
		seq:           seq,
		firstSendTime: now,
		lastSendTime:  now,
		state:         slotUnacked,
	}
	snd.lastDataSent = now
	snd.mu.Unlock()

	if s.cc != nil {
		s.cc.onSend()
	}
	s.transmit(typeData, seq, payloadCopy)
	return true
}

// retransmitExpired resends any unacked slot whose last send is older than
// the configured retransmit timeout, failing the session if any slot
// exceeds the per-packet retransmit cap.
func (s *Session) retransmitExpired() {
	snd := s.sender
	timeout := s.opts.RetransmitTimeout()
	if timeout <= 0 {
		return
	}
	now := time.Now()

	snd.mu.Lock()
	var toResend []windowSlot
	for i := range snd.window {
		slot := &snd.window[i]
		if slot.state != slotUnacked {
			continue
		}
		if now.Sub(slot.lastSendTime) < timeout {
			continue
		}
		slot.retransmits++
		slot.lastSendTime = now
		if slot.retransmits > s.opts.MaxRetransmits() {
			snd.mu.Unlock()
			s.fail(flux.ErrRudpSessionFailed)
			return
		}
		toResend = append(toResend, *slot)
	}
	snd.mu.Unlock()

	for _, slot := range toResend {
		s.metrics.RecordRetransmit()
		s.logger.Debug("retransmitting", zap.Uint64("seq", slot.seq), zap.Int("attempt", slot.retransmits))
		s.transmit(typeData, slot.seq, slot.payload)
	}
}

// maybeHeartbeat emits a HEARTBEAT carrying only the cumulative ACK if no
// DATA has been sent for the configured heartbeat interval.
func (s *Session) maybeHeartbeat() {
	interval := s.opts.HeartbeatInterval()
	if interval <= 0 {
		return
	}
	snd := s.sender
	snd.mu.Lock()
	idle := time.Since(snd.lastDataSent) >= interval
	snd.mu.Unlock()
	if idle {
		s.transmit(typeHeartbeat, 0, nil)
	}
}

// handleAck applies ack, marking every slot in (cumulative_ack, ack] acked
// and freeing its buffer, then advancing cumulative_ack.
func (s *Session) handleAck(ack uint64) {
	snd := s.sender
	snd.mu.Lock()
	defer snd.mu.Unlock()
	if ack <= snd.cumulativeAck {
		return
	}
	for seq := snd.cumulativeAck + 1; seq <= ack && seq < snd.nextSendSeq; seq++ {
		idx := seq % uint64(len(snd.window))
		if snd.window[idx].seq == seq {
			snd.window[idx].state = slotAcked
			snd.window[idx].payload = nil
		}
	}
	snd.cumulativeAck = ack
	if s.cc != nil {
		s.cc.onAck()
	}
}

// handleNak retransmits the named sequence immediately if it is still
// outstanding and within the valid range.
func (s *Session) handleNak(seq uint64) {
	snd := s.sender
	snd.mu.Lock()
	if seq <= snd.cumulativeAck || seq >= snd.nextSendSeq {
		snd.mu.Unlock()
		return
	}
	idx := seq % uint64(len(snd.window))
	slot := snd.window[idx]
	if slot.seq != seq || slot.state != slotUnacked {
		snd.mu.Unlock()
		return
	}
	slot.retransmits++
	slot.lastSendTime = time.Now()
	snd.window[idx] = slot
	failSession := slot.retransmits > s.opts.MaxRetransmits()
	snd.mu.Unlock()

	if failSession {
		s.fail(flux.ErrRudpSessionFailed)
		return
	}
	if s.cc != nil {
		s.cc.onLoss()
	}
	s.metrics.RecordRetransmit()
	s.transmit(typeData, seq, slot.payload)
}

// transmit frames and writes one datagram, piggybacking the receiver's
// current cumulative ACK.
func (s *Session) transmit(typ packetType, seq uint64, payload []byte) {
	ackSeq := uint64(0)
	if s.receiver.nextExpectedSeq() > 1 {
		ackSeq = s.receiver.nextExpectedSeq() - 1
	}
	p := &packet{typ: typ, sequence: seq, ackSeq: ackSeq, payload: payload}
	datagram := p.encode()
	if _, err := s.conn.WriteTo(datagram, s.peer); err != nil {
		s.logger.Warn("write failed", zap.Error(err))
		return
	}
	if typ == typeData {
		s.metrics.RecordSend(len(payload))
	}
}
