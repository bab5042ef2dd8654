// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rudp

import (
	"sync"
	"time"
)

// congestionController is an optional AIMD controller bounding the
// effective send rate by min(window_size, cwnd). Additive increase of one
// packet on every ACK, the same increment below and above ssthresh (so
// ssthresh, set on loss, does not change the growth rate); multiplicative
// decrease on loss, at most once per RTT estimate. Called
// from both the sender goroutine (onSend/canSend) and the receiver
// goroutine (onAck/onLoss, via handleAck/handleNak), so it keeps its own
// lock rather than relying on a caller-held one.
type congestionController struct {
	mu sync.Mutex

	cwnd     uint32
	minCwnd  uint32
	maxCwnd  uint32
	ssthresh uint32
	rtt      time.Duration
	lastLoss time.Time
	inFlight uint32
	now      func() time.Time
}

func newCongestionController(initial, max uint32, now func() time.Time) *congestionController {
	if now == nil {
		now = time.Now
	}
	return &congestionController{
		cwnd:     initial,
		minCwnd:  4,
		maxCwnd:  max,
		ssthresh: max / 2,
		rtt:      time.Millisecond,
		lastLoss: now(),
		now:      now,
	}
}

// canSend reports whether the controller's window allows another packet.
func (c *congestionController) canSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight < c.cwnd
}

// onSend records a packet handed to the socket.
func (c *congestionController) onSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight++
}

// onAck records an ACK, releasing one in-flight slot and growing the
// window by one packet, capped at maxCwnd. The increment is the same
// whether cwnd is below or above ssthresh.
func (c *congestionController) onAck() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	if c.cwnd < c.ssthresh {
		c.cwnd = min32(c.cwnd+1, c.maxCwnd)
		return
	}
	if c.cwnd < c.maxCwnd {
		c.cwnd++
	}
}

// onLoss halves the window (bounded below by minCwnd), at most once per
// RTT estimate so a burst of losses from a single event does not cascade
// into repeated collapses.
func (c *congestionController) onLoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Sub(c.lastLoss) <= c.rtt {
		return
	}
	c.ssthresh = max32(c.cwnd/2, c.minCwnd)
	c.cwnd = c.ssthresh
	c.lastLoss = c.now()
}

// updateRTT folds a new RTT sample into the EWMA estimate (rtt = 7/8 old +
// 1/8 sample), matching the reference controller's smoothing factor.
func (c *congestionController) updateRTT(sample time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rtt = (c.rtt*7 + sample) / 8
}

// window returns the current congestion window in packets.
func (c *congestionController) window() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cwnd
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
