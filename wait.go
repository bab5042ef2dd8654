// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"runtime"
	"time"

	"code.hybscloud.com/spin"
)

// WaitStrategy is an external wait policy applied on top of the
// non-blocking ring protocol. The engine itself never blocks; a
// WaitStrategy only decides how a caller spends time between unsuccessful
// attempts. Wait is called once per failed attempt and must not itself
// retry the underlying operation.
type WaitStrategy interface {
	Wait()
}

// SpinWait busy-spins with the same adaptive backoff the lock-free queue
// engines use internally (code.hybscloud.com/spin), and is the default.
// Lowest latency, highest CPU usage; appropriate when producer/consumer
// goroutines are pinned to their own cores.
type SpinWait struct {
	sw spin.Wait
}

func (w *SpinWait) Wait() { w.sw.Once() }

// YieldWait yields the goroutine's processor (runtime.Gosched) on each
// call, with no spinning first. Lower CPU usage than SpinWait, higher
// latency.
type YieldWait struct{}

func (YieldWait) Wait() { runtime.Gosched() }

// SleepWait sleeps for a fixed duration each iteration. Lowest CPU usage,
// highest and least predictable latency; appropriate for background or
// low-rate consumers.
type SleepWait struct {
	Duration time.Duration
}

func (w SleepWait) Wait() {
	d := w.Duration
	if d <= 0 {
		d = time.Millisecond
	}
	time.Sleep(d)
}

// BlockWait parks the goroutine on a channel until explicitly woken by
// Notify, the closest Go equivalent to a condition-variable wait
// strategy. Notify is safe to call from any goroutine and is
// non-blocking; a notification that arrives with no waiter pending is not
// lost, since the channel is buffered with capacity 1.
type BlockWait struct {
	ch chan struct{}
}

// NewBlockWait returns a ready-to-use BlockWait.
func NewBlockWait() *BlockWait {
	return &BlockWait{ch: make(chan struct{}, 1)}
}

func (w *BlockWait) Wait() { <-w.ch }

// Notify wakes one pending Wait call, or primes the next one if none is
// currently waiting.
func (w *BlockWait) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}
