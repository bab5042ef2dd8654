// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rudp

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"code.hybscloud.com/flux"
)

// ringCapacity is the slot count for each session's two internal SPSC
// rings (application-to-sender and receiver-to-application). It is not
// configurable through Options: it bounds only how much the socket loops
// may get ahead of the application, not any protocol-visible behavior.
const ringCapacity = 4096

// readDeadline bounds a single blocking read on the underlying socket so
// the receive loop can observe session close promptly.
const readDeadline = 50 * time.Millisecond

// tickInterval paces the sender loop's retransmit/heartbeat checks. NAK
// emission runs on the receiver loop's own ticker.
const tickInterval = 10 * time.Millisecond

// Session is one reliable-UDP endpoint: a sender state machine, a receiver
// state machine, and the two in-process SPSC rings (the root package's
// SPSCRing) connecting them to the application.
type Session struct {
	id     uuid.UUID
	conn   net.PacketConn
	peer   net.Addr
	logger *zap.Logger
	opts   flux.Options
	cc     *congestionController

	outgoing  *flux.SPSCRing[flux.MessageSlot, *flux.MessageSlot]
	incoming  *flux.SPSCRing[flux.MessageSlot, *flux.MessageSlot]
	outCursor uint64 // sender's consumer cursor into outgoing
	inCursor  uint64 // application's consumer cursor into incoming

	sender   *senderState
	receiver *receiverState
	metrics  *flux.Metrics

	nakLimiter *rate.Limiter

	closeCh  chan struct{}
	closeErr atomic.Value // error
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewSession constructs a session bound to conn and peer. conn is shared by
// the sender and receiver loops and must not be used directly by the
// caller after Start. enableCongestion additionally runs an AIMD
// controller bounding the send rate by min(window_size, cwnd).
func NewSession(conn net.PacketConn, peer net.Addr, opts flux.Options, logger *zap.Logger, enableCongestion bool) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	windowSize := opts.WindowSize()
	if windowSize <= 0 {
		return nil, &flux.Error{Kind: flux.KindInvalidConfig, Message: "rudp session requires a positive window_size"}
	}

	id := uuid.New()
	s := &Session{
		id:       id,
		conn:     conn,
		peer:     peer,
		logger:   logger.With(zap.String("session_id", id.String())),
		opts:     opts,
		outgoing: flux.NewSPSCRing[flux.MessageSlot, *flux.MessageSlot](ringCapacity),
		incoming: flux.NewSPSCRing[flux.MessageSlot, *flux.MessageSlot](ringCapacity),
		metrics:  flux.NewMetrics(),
		closeCh:  make(chan struct{}),
	}

	if enableCongestion {
		s.cc = newCongestionController(uint32(windowSize), uint32(4*windowSize), nil)
	}
	s.nakLimiter = rate.NewLimiter(rate.Limit(200), windowSize)

	s.sender = newSenderState(windowSize)
	s.receiver = newReceiverState(opts.MaxOutOfOrder())

	return s, nil
}

// Start launches the sender and receiver loops. Safe to call once.
func (s *Session) Start() {
	s.wg.Add(2)
	go s.senderLoop()
	go s.receiverLoop()
}

// Send enqueues payload for transmission. Non-blocking: returns
// [flux.ErrWouldBlock] if the internal outgoing ring has no room, which
// happens only when the sender loop is itself blocked on a full
// congestion/session window.
func (s *Session) Send(payload []byte) error {
	if s.closed.Load() {
		return flux.ErrRudpSessionFailed
	}
	start, slots, err := s.outgoing.TryClaim(1)
	if err != nil {
		return err
	}
	slots[0].SetData(payload)
	s.outgoing.Publish(start, 1)
	return nil
}

// TryRecv returns up to maxN in-order delivered payloads without blocking.
func (s *Session) TryRecv(maxN int) [][]byte {
	batch := s.incoming.ReadBatch(s.inCursor, maxN)
	if len(batch) == 0 {
		return nil
	}
	out := make([][]byte, len(batch))
	for i := range batch {
		data := batch[i].Data()
		cp := make([]byte, len(data))
		copy(cp, data)
		out[i] = cp
	}
	s.inCursor += uint64(len(batch))
	s.incoming.UpdateConsumer(s.inCursor)
	return out
}

// Metrics returns the session's send/receive/retransmit/NAK counters.
func (s *Session) Metrics() *flux.Metrics { return s.metrics }

// Err returns the error that failed the session, or nil if it has not
// failed. A session stopped by Close alone reports nil.
func (s *Session) Err() error {
	if v := s.closeErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Close tears the session down: stops both loops and closes the socket.
// Safe to call more than once.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.closeCh)
	}
	s.wg.Wait()
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// fail records err as the session's terminal failure and stops both loops.
// Idempotent: only the first failure sticks.
func (s *Session) fail(err error) {
	s.closeErr.CompareAndSwap(nil, err)
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Warn("rudp session failed", zap.Error(err))
		close(s.closeCh)
	}
}
