// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "time"

// MaxCapacity is the largest ring capacity this module accepts: 4 Mi
// slots, matching the configuration table's stated upper bound.
const MaxCapacity = 4 * 1024 * 1024

// Options configures ring construction and RUDP session behavior. Not
// every field applies to every ring variant; see the Builder methods for
// which fields a given ring honors.
type Options struct {
	capacity      int
	numConsumers  int
	waitStrategy  WaitStrategy

	// RUDP-only fields; ignored by ring constructors.
	windowSize        int
	retransmitTimeout time.Duration
	maxRetransmits    int
	nakTimeout        time.Duration
	maxOutOfOrder     int
	heartbeatInterval time.Duration
	sessionTimeout    time.Duration
}

// Builder builds Options fluently, validating as it goes.
type Builder struct {
	opts Options
	err  error
}

// NewOptions starts a Builder for a ring of the given capacity. Capacity
// rounds up to the next power of two; construction fails with
// [ErrInvalidConfig] if the rounded value exceeds [MaxCapacity].
func NewOptions(capacity int) *Builder {
	b := &Builder{}
	if capacity < 2 {
		b.err = newError(KindInvalidConfig, "capacity must be >= 2", nil)
		return b
	}
	n := roundToPow2(capacity)
	if n > MaxCapacity {
		b.err = newError(KindInvalidConfig, "capacity exceeds maximum of 4 Mi slots", nil)
		return b
	}
	b.opts = Options{capacity: n, numConsumers: 1, waitStrategy: &SpinWait{}}
	return b
}

// WithConsumers sets the number of independent consumer cursors for
// SPMC rings. MPMC rings accept the value but do not use it (their
// competing consumers share one completion tracker). Ignored by SPSC/MPSC.
func (b *Builder) WithConsumers(n int) *Builder {
	if b.err == nil && n < 1 {
		b.err = newError(KindInvalidConfig, "num_consumers must be >= 1", nil)
		return b
	}
	b.opts.numConsumers = n
	return b
}

// WithWaitStrategy sets the external wait policy used by blocking helpers
// built on top of the non-blocking ring protocol.
func (b *Builder) WithWaitStrategy(ws WaitStrategy) *Builder {
	b.opts.waitStrategy = ws
	return b
}

// WithWindowSize sets the RUDP sender sliding window size W.
func (b *Builder) WithWindowSize(w int) *Builder {
	if b.err == nil && w < 1 {
		b.err = newError(KindInvalidConfig, "window_size must be >= 1", nil)
		return b
	}
	b.opts.windowSize = w
	return b
}

// WithRetransmitTimeout sets the per-packet age after which the RUDP
// sender retransmits an unacked packet.
func (b *Builder) WithRetransmitTimeout(d time.Duration) *Builder {
	if b.err == nil && d <= 0 {
		b.err = newError(KindInvalidConfig, "retransmit_timeout must be > 0", nil)
		return b
	}
	b.opts.retransmitTimeout = d
	return b
}

// WithMaxRetransmits sets the per-packet retransmit cap before the RUDP
// session is failed.
func (b *Builder) WithMaxRetransmits(n int) *Builder {
	if b.err == nil && n < 1 {
		b.err = newError(KindInvalidConfig, "max_retransmits must be >= 1", nil)
		return b
	}
	b.opts.maxRetransmits = n
	return b
}

// WithNakTimeout sets the receiver's delay before emitting NAKs for a
// detected gap.
func (b *Builder) WithNakTimeout(d time.Duration) *Builder {
	if b.err == nil && d <= 0 {
		b.err = newError(KindInvalidConfig, "nak_timeout must be > 0", nil)
		return b
	}
	b.opts.nakTimeout = d
	return b
}

// WithMaxOutOfOrder sets the receiver reorder buffer capacity; an
// out-of-order packet that arrives while the buffer already holds this
// many entries is dropped.
func (b *Builder) WithMaxOutOfOrder(n int) *Builder {
	if b.err == nil && n < 1 {
		b.err = newError(KindInvalidConfig, "max_out_of_order must be >= 1", nil)
		return b
	}
	b.opts.maxOutOfOrder = n
	return b
}

// WithHeartbeatInterval sets the idle sender heartbeat period.
func (b *Builder) WithHeartbeatInterval(d time.Duration) *Builder {
	if b.err == nil && d <= 0 {
		b.err = newError(KindInvalidConfig, "heartbeat_interval must be > 0", nil)
		return b
	}
	b.opts.heartbeatInterval = d
	return b
}

// WithSessionTimeout sets the idle session expiry value. The value is
// validated and stored; rudp.Session does not read it, so idle sessions
// are not expired.
func (b *Builder) WithSessionTimeout(d time.Duration) *Builder {
	if b.err == nil && d <= 0 {
		b.err = newError(KindInvalidConfig, "session_timeout must be > 0", nil)
		return b
	}
	b.opts.sessionTimeout = d
	return b
}

// Capacity returns the configured ring capacity, already rounded to a
// power of two.
func (o Options) Capacity() int { return o.capacity }

// NumConsumers returns the configured number of independent consumer
// cursors for SPMC rings (accepted but unused by MPMC rings).
func (o Options) NumConsumers() int { return o.numConsumers }

// WaitStrategy returns the configured external backoff policy.
func (o Options) WaitStrategy() WaitStrategy { return o.waitStrategy }

// WindowSize returns the configured RUDP sender sliding window size.
func (o Options) WindowSize() int { return o.windowSize }

// RetransmitTimeout returns the configured RUDP per-packet retransmit age.
func (o Options) RetransmitTimeout() time.Duration { return o.retransmitTimeout }

// MaxRetransmits returns the configured RUDP per-packet retransmit cap.
func (o Options) MaxRetransmits() int { return o.maxRetransmits }

// NakTimeout returns the configured RUDP receiver NAK emission delay.
func (o Options) NakTimeout() time.Duration { return o.nakTimeout }

// MaxOutOfOrder returns the configured RUDP reorder buffer capacity.
func (o Options) MaxOutOfOrder() int { return o.maxOutOfOrder }

// HeartbeatInterval returns the configured RUDP idle sender heartbeat period.
func (o Options) HeartbeatInterval() time.Duration { return o.heartbeatInterval }

// SessionTimeout returns the configured RUDP idle session expiry.
func (o Options) SessionTimeout() time.Duration { return o.sessionTimeout }

// Build returns the validated Options, or the first validation error
// encountered by the builder chain.
func (b *Builder) Build() (Options, error) {
	if b.err != nil {
		return Options{}, b.err
	}
	return b.opts, nil
}

// BuildSPSC builds an SPSC ring from the builder's options.
func BuildSPSC[T any, PT Entry[T]](b *Builder) (*SPSCRing[T, PT], error) {
	opts, err := b.Build()
	if err != nil {
		return nil, err
	}
	return NewSPSCRing[T, PT](opts.capacity), nil
}

// BuildSPMC builds an SPMC ring from the builder's options.
func BuildSPMC[T any, PT Entry[T]](b *Builder) (*SPMCRing[T, PT], error) {
	opts, err := b.Build()
	if err != nil {
		return nil, err
	}
	return NewSPMCRing[T, PT](opts.capacity, opts.numConsumers), nil
}

// BuildMPSC builds an MPSC ring from the builder's options.
func BuildMPSC[T any, PT Entry[T]](b *Builder) (*MPSCRing[T, PT], error) {
	opts, err := b.Build()
	if err != nil {
		return nil, err
	}
	return NewMPSCRing[T, PT](opts.capacity), nil
}

// BuildMPMC builds an MPMC ring from the builder's options.
func BuildMPMC[T any, PT Entry[T]](b *Builder) (*MPMCRing[T, PT], error) {
	opts, err := b.Build()
	if err != nil {
		return nil, err
	}
	return NewMPMCRing[T, PT](opts.capacity, opts.numConsumers), nil
}

// roundToPow2 rounds n up to the next power of 2.
func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// pad is cache line padding to prevent false sharing.
type pad [64]byte

// padShort is padding to fill a cache line after an 8-byte field.
type padShort [64 - 8]byte
