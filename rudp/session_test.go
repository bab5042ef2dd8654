// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rudp_test

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/flux"
	"code.hybscloud.com/flux/rudp"
)

// lossyConn wraps a *net.UDPConn, dropping each sequence in a given set the
// first time it is written, simulating the burst-loss scenario: datagrams
// in a sequence range vanish once, and the NAK/retransmit machinery must
// still deliver every message in order.
type lossyConn struct {
	*net.UDPConn
	mu      sync.Mutex
	dropped map[uint64]bool
	drop    func(seq uint64) bool
}

func newLossyConn(conn *net.UDPConn, drop func(seq uint64) bool) *lossyConn {
	return &lossyConn{UDPConn: conn, dropped: make(map[uint64]bool), drop: drop}
}

func (c *lossyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if len(p) >= 16 {
		seq := beUint64LE(p[8:16])
		if c.drop(seq) {
			c.mu.Lock()
			already := c.dropped[seq]
			c.dropped[seq] = true
			c.mu.Unlock()
			if !already {
				return len(p), nil // pretend it was sent; it never arrives
			}
		}
	}
	return c.UDPConn.WriteTo(p, addr)
}

func beUint64LE(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestSessionBurstLossRecoversInOrderDelivery(t *testing.T) {
	const total = 100
	const burstFrom, burstTo = 20, 29 // 10-packet burst, scaled down from the spec's 500-519/1000

	senderConn := listenLoopback(t)
	receiverConn := listenLoopback(t)

	lossy := newLossyConn(senderConn, func(seq uint64) bool {
		return seq >= burstFrom && seq <= burstTo
	})

	opts, err := flux.NewOptions(8).
		WithWindowSize(64).
		WithRetransmitTimeout(30 * time.Millisecond).
		WithMaxRetransmits(20).
		WithNakTimeout(10 * time.Millisecond).
		WithMaxOutOfOrder(256).
		WithHeartbeatInterval(time.Second).
		WithSessionTimeout(10 * time.Second).
		Build()
	require.NoError(t, err)

	sender, err := rudp.NewSession(lossy, receiverConn.LocalAddr(), opts, nil, false)
	require.NoError(t, err)
	receiver, err := rudp.NewSession(receiverConn, senderConn.LocalAddr(), opts, nil, false)
	require.NoError(t, err)
	sender.Start()
	receiver.Start()
	defer sender.Close()
	defer receiver.Close()

	for i := 1; i <= total; i++ {
		msg := fmt.Sprintf("msg-%d", i)
		for {
			if err := sender.Send([]byte(msg)); err == nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	received := make([]string, 0, total)
	for len(received) < total && time.Now().Before(deadline) {
		for _, payload := range receiver.TryRecv(total) {
			received = append(received, string(payload))
		}
		if len(received) < total {
			time.Sleep(5 * time.Millisecond)
		}
	}

	require.Len(t, received, total)
	for i, payload := range received {
		require.Equalf(t, fmt.Sprintf("msg-%d", i+1), payload, "received[%d] out of order or gapped", i)
	}
}
