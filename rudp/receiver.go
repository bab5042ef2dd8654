// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rudp

import (
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"code.hybscloud.com/flux"
)

// receiverState is the RUDP receiver side: the next in-order sequence
// expected, a bounded reorder buffer for packets that arrived early, and
// the set of sequences known missing and awaiting a NAK.
type receiverState struct {
	mu              sync.Mutex
	nextExpected    uint64 // starts at 1
	reorder         map[uint64][]byte
	maxOutOfOrder   int
	pendingNak      map[uint64]struct{}
	lastActivity    time.Time
	lastAckSentSeq  uint64
	lastAckSentTime time.Time
}

func newReceiverState(maxOutOfOrder int) *receiverState {
	if maxOutOfOrder <= 0 {
		maxOutOfOrder = 1024
	}
	return &receiverState{
		nextExpected:  1,
		reorder:       make(map[uint64][]byte),
		maxOutOfOrder: maxOutOfOrder,
		pendingNak:    make(map[uint64]struct{}),
		lastActivity:  time.Now(),
	}
}

func (r *receiverState) nextExpectedSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextExpected
}

func (s *Session) receiverLoop() {
	defer s.wg.Done()
	buf := make([]byte, headerSize+MaxPayload)
	nakTicker := time.NewTicker(nakTickInterval(s.opts.NakTimeout()))
	defer nakTicker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-nakTicker.C:
			s.emitPendingNaks()
			continue
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.logger.Debug("read failed", zap.Error(err))
			continue
		}
		if s.peer == nil {
			s.peer = addr
		}

		pkt, err := decodePacket(buf[:n])
		if err != nil {
			if flux.IsChecksumFailure(err) {
				s.metrics.RecordChecksumFailure()
			}
			continue
		}
		s.dispatch(pkt)
	}
}

func nakTickInterval(configured time.Duration) time.Duration {
	if configured <= 0 {
		return 20 * time.Millisecond
	}
	return configured
}

func (s *Session) dispatch(pkt *packet) {
	// Every packet type piggybacks the sender's cumulative ACK for the
	// reverse direction when endpoints are collocated.
	s.handleAck(pkt.ackSeq)

	switch pkt.typ {
	case typeData:
		s.handleDataPacket(pkt)
	case typeNak:
		s.handleNak(pkt.sequence)
	}
}

// handleDataPacket implements the receiver state machine of 4.7.3: deliver
// in-order, buffer or NAK out-of-order, drop duplicates and checksum
// failures (the latter already filtered out before this is called).
func (s *Session) handleDataPacket(pkt *packet) {
	rcv := s.receiver
	rcv.mu.Lock()
	rcv.lastActivity = time.Now()

	switch {
	case pkt.sequence < rcv.nextExpected:
		// Duplicate: drop, optionally re-ACK so a peer that missed our
		// last ACK catches up.
		rcv.mu.Unlock()
		s.transmit(typeAck, 0, nil)
		return

	case pkt.sequence == rcv.nextExpected:
		delivered := [][]byte{pkt.payload}
		delete(rcv.pendingNak, rcv.nextExpected)
		rcv.nextExpected++
		for {
			next, ok := rcv.reorder[rcv.nextExpected]
			if !ok {
				break
			}
			delete(rcv.reorder, rcv.nextExpected)
			delete(rcv.pendingNak, rcv.nextExpected)
			delivered = append(delivered, next)
			rcv.nextExpected++
		}
		advancedPastMissing := len(delivered) > 1
		rcv.mu.Unlock()

		s.deliverAll(delivered)
		if advancedPastMissing {
			s.transmit(typeAck, 0, nil)
		}

	default:
		if len(rcv.reorder) < rcv.maxOutOfOrder {
			rcv.reorder[pkt.sequence] = pkt.payload
		}
		for gap := rcv.nextExpected; gap < pkt.sequence; gap++ {
			if _, buffered := rcv.reorder[gap]; buffered {
				continue
			}
			rcv.pendingNak[gap] = struct{}{}
		}
		rcv.mu.Unlock()
	}
}

// deliverAll publishes delivered payloads, in order, into the incoming
// ring for the application to consume.
func (s *Session) deliverAll(payloads [][]byte) {
	for _, p := range payloads {
		s.deliverOne(p)
	}
}

func (s *Session) deliverOne(payload []byte) {
	ws := s.opts.WaitStrategy()
	if ws == nil {
		ws = &flux.SpinWait{}
	}
	for {
		start, slots, err := s.incoming.TryClaim(1)
		if err == nil {
			slots[0].SetData(payload)
			s.incoming.Publish(start, 1)
			s.metrics.RecordReceive(len(payload))
			return
		}
		select {
		case <-s.closeCh:
			return
		default:
		}
		ws.Wait()
	}
}

// emitPendingNaks sends one NAK per pending sequence, rate-limited to
// bound NAK storms, clearing each entry as it is sent.
func (s *Session) emitPendingNaks() {
	rcv := s.receiver
	rcv.mu.Lock()
	pending := make([]uint64, 0, len(rcv.pendingNak))
	for seq := range rcv.pendingNak {
		pending = append(pending, seq)
	}
	rcv.mu.Unlock()

	for _, seq := range pending {
		if !s.nakLimiter.Allow() {
			break
		}
		rcv.mu.Lock()
		delete(rcv.pendingNak, seq)
		rcv.mu.Unlock()

		s.metrics.RecordNakSent()
		p := &packet{typ: typeNak, sequence: seq}
		datagram := p.encode()
		if _, err := s.conn.WriteTo(datagram, s.peer); err != nil {
			s.logger.Warn("nak write failed", zap.Error(err))
		}
	}
}
