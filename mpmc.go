// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// MPMCRing is a multi-producer multi-consumer sequenced ring buffer.
//
// The producer side reuses MPSCRing's claim protocol: a CAS loop reserves
// a contiguous range, and each producer publishes by stamping its slots'
// own sequence fields with release ordering. The consumer side is a
// competing-consumer model — each published message is read by exactly
// one consumer — implemented with a [completionTracker]: consumers share
// a claim cursor bounding who gets which sequence, and commit completed
// reads through a read-then-commit pattern so the producer's
// back-pressure (bounded by the committed cursor, not the raw claim
// cursor) never lets a producer overwrite a slot a consumer has claimed
// but not finished reading.
type MPMCRing[T any, PT Entry[T]] struct {
	_         pad
	producer  atomix.Uint64 // next sequence to be claimed by a producer
	_         pad
	published atomix.Uint64 // longest contiguous published prefix
	_         pad
	draining  atomix.Bool
	_         pad
	tracker   *completionTracker
	buffer    []T
	mask      uint64
	capacity  uint64
}

// NewMPMCRing creates a ring with the given capacity (rounded up to the
// next power of two, minimum 2). numConsumers is accepted for symmetry
// with SPMCRing's constructor but does not affect MPMC's layout: the
// competing-consumer model has no per-consumer cursor array, only the
// shared completion tracker.
func NewMPMCRing[T any, PT Entry[T]](capacity, numConsumers int) *MPMCRing[T, PT] {
	if capacity < 2 {
		panic("flux: capacity must be >= 2")
	}
	_ = numConsumers
	n := uint64(roundToPow2(capacity))
	return &MPMCRing[T, PT]{
		buffer:   make([]T, n),
		mask:     n - 1,
		capacity: n,
		tracker:  newCompletionTracker(n),
	}
}

// Drain signals that no more producers will publish.
func (r *MPMCRing[T, PT]) Drain() { r.draining.StoreRelease(true) }

// TryClaim reserves up to n contiguous slots across all producers,
// bounded by the capacity remaining above the committed (completed)
// cursor rather than the raw consumer claim cursor.
func (r *MPMCRing[T, PT]) TryClaim(n int) (start uint64, slots []T, err error) {
	if n <= 0 {
		return 0, nil, nil
	}
	sw := spin.Wait{}
	for {
		tail := r.producer.LoadAcquire()
		committed := r.tracker.completedCursorValue()
		free := r.capacity - (tail - committed)
		if free == 0 {
			return 0, nil, ErrWouldBlock
		}
		granted := uint64(n)
		if granted > free {
			granted = free
		}
		idx := tail & r.mask
		if idx+granted > r.capacity {
			granted = r.capacity - idx
		}
		if r.producer.CompareAndSwapAcqRel(tail, tail+granted) {
			return tail, r.buffer[idx : idx+granted], nil
		}
		sw.Once()
	}
}

// Publish stamps each claimed slot's own sequence field with release
// ordering, marking the range as readable. Producers may publish their
// claimed ranges in any relative order.
func (r *MPMCRing[T, PT]) Publish(start uint64, n int) {
	for i := 0; i < n; i++ {
		idx := (start + uint64(i)) & r.mask
		PT(&r.buffer[idx]).SetSequence(start + uint64(i) + 1)
	}
}

// advancePublished extends the published frontier over any newly
// contiguous run of stamped slots since the last call.
func (r *MPMCRing[T, PT]) advancePublished() {
	for {
		cur := r.published.LoadAcquire()
		idx := cur & r.mask
		if PT(&r.buffer[idx]).Sequence() != cur+1 {
			return
		}
		if !r.published.CompareAndSwapAcqRel(cur, cur+1) {
			continue
		}
	}
}

// TryClaimRead claims up to maxN contiguous published slots for the
// calling consumer and returns a guard scoping the read; the caller must
// call Release on the guard (typically via defer) exactly once to mark
// the read complete.
func (r *MPMCRing[T, PT]) TryClaimRead(maxN int) (*BatchReadGuard[T], error) {
	if maxN <= 0 {
		return nil, nil
	}
	r.advancePublished()
	sw := spin.Wait{}
	for {
		claim := r.tracker.claimCursorValue()
		frontier := r.published.LoadAcquire()
		if claim >= frontier {
			return nil, ErrWouldBlock
		}
		n := uint64(maxN)
		if avail := frontier - claim; n > avail {
			n = avail
		}
		if slots := r.tracker.mask + 1; n > slots {
			n = slots
		}
		idx := claim & r.mask
		if idx+n > r.capacity {
			n = r.capacity - idx
		}
		if r.tracker.claimCursor.CompareAndSwapAcqRel(claim, claim+n) {
			return &BatchReadGuard[T]{tracker: r.tracker, start: claim, slots: r.buffer[idx : idx+n]}, nil
		}
		sw.Once()
	}
}

// TryClaimOne is TryClaimRead(1) returning a single-slot [ReadGuard] for
// callers that never batch.
func (r *MPMCRing[T, PT]) TryClaimOne() (*ReadGuard[T], error) {
	g, err := r.TryClaimRead(1)
	if err != nil {
		return nil, err
	}
	return &ReadGuard[T]{tracker: g.tracker, seq: g.start, slot: &g.slots[0]}, nil
}

// Cap returns the ring's capacity in slots.
func (r *MPMCRing[T, PT]) Cap() int { return int(r.capacity) }

// CommittedCursor returns the longest contiguous prefix of completed
// reads, the value producer back-pressure is computed from.
func (r *MPMCRing[T, PT]) CommittedCursor() uint64 { return r.tracker.completedCursorValue() }
