// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// MPSCRing is a multi-producer single-consumer sequenced ring buffer.
//
// Producers contend for a claim via a CAS loop on the shared producer
// cursor: because multiple producers may be mid-write at once, a
// producer cannot simply publish by bumping a cursor past its own range
// in claim order. Instead, after writing its slots, each producer stores
// each slot's own sequence plus one into that slot's embedded sequence
// field with release ordering (Publish), so a zeroed slot never reads as
// published. The consumer's effective read frontier is the longest
// contiguous run of slots whose in-slot value matches what the consumer
// expects — a per-slot "sequence matches" check in place of a separate
// published-flag array.
type MPSCRing[T any, PT Entry[T]] struct {
	_        pad
	producer atomix.Uint64 // next sequence to be claimed
	_        pad
	consumer atomix.Uint64 // next sequence the consumer will read
	_        pad
	draining atomix.Bool
	_        pad
	buffer   []T
	mask     uint64
	capacity uint64
}

// NewMPSCRing creates a ring with the given capacity, rounded up to the
// next power of two (minimum 2). Unlike the SCQ-style competing queue
// this package's teacher ships, the claim protocol here needs only n
// physical slots, not 2n, because readiness is carried in the slot's own
// sequence field rather than a cycle counter.
func NewMPSCRing[T any, PT Entry[T]](capacity int) *MPSCRing[T, PT] {
	if capacity < 2 {
		panic("flux: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	return &MPSCRing[T, PT]{
		buffer:   make([]T, n),
		mask:     n - 1,
		capacity: n,
	}
}

// Drain records that no more producers will publish (see [Drainer]). It
// does not change what the consumer can read: only published slots are
// ever returned. The ring's claim and read paths do not consult the
// recorded flag, and the ring has no accessor for it.
func (r *MPSCRing[T, PT]) Drain() { r.draining.StoreRelease(true) }

// TryClaim reserves up to n contiguous slots across all producers. The
// claim is granted via a CAS loop so the grant itself is atomic and
// never overlaps another producer's range; the caller must Publish the
// exact range it was granted.
func (r *MPSCRing[T, PT]) TryClaim(n int) (start uint64, slots []T, err error) {
	if n <= 0 {
		return 0, nil, nil
	}
	sw := spin.Wait{}
	for {
		tail := r.producer.LoadAcquire()
		head := r.consumer.LoadAcquire()
		free := r.capacity - (tail - head)
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

// Publish stamps each claimed slot's own sequence field, with release
// ordering, marking the range [start, start+n) as safe for the consumer
// to read. Producers may publish their claimed ranges in any relative
// order; the consumer only advances over a contiguous published prefix.
func (r *MPSCRing[T, PT]) Publish(start uint64, n int) {
	for i := 0; i < n; i++ {
		idx := (start + uint64(i)) & r.mask
		PT(&r.buffer[idx]).SetSequence(start + uint64(i) + 1)
	}
}

// ReadBatch returns the longest contiguous run, up to maxN slots, whose
// in-slot sequence matches cursor+1, cursor+2, ... starting at cursor.
// This is the single consumer's only method of progress: there is no
// separate producer-cursor check, since a claimed-but-not-yet-published
// range must not be visible even though the producer cursor has already
// moved past it.
func (r *MPSCRing[T, PT]) ReadBatch(cursor uint64, maxN int) []T {
	if maxN <= 0 {
		return nil
	}
	capacity := r.capacity
	idx := cursor & r.mask
	limit := uint64(maxN)
	if capacity-idx < limit {
		limit = capacity - idx
	}
	n := uint64(0)
	for n < limit {
		slot := PT(&r.buffer[idx+n])
		if slot.Sequence() != cursor+n+1 {
			break
		}
		n++
	}
	if n == 0 {
		return nil
	}
	return r.buffer[idx : idx+n]
}

// UpdateConsumer advances the consumer cursor to cursor with release
// ordering, releasing the corresponding slots back to the producer side.
func (r *MPSCRing[T, PT]) UpdateConsumer(cursor uint64) {
	r.consumer.StoreRelease(cursor)
}

// Cap returns the ring's capacity in slots.
func (r *MPSCRing[T, PT]) Cap() int { return int(r.capacity) }
