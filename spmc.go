// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "code.hybscloud.com/atomix"

// spmcConsumerCursor is one cache-line-padded consumer cursor in an
// SPMCRing's consumer array.
type spmcConsumerCursor struct {
	cursor atomix.Uint64
	_      padShort
}

// SPMCRing is a single-producer, multi-consumer sequenced ring buffer in
// which every consumer independently observes every published message in
// order — a broadcast fan-out, not a work-distribution queue. This is
// the delta the specification draws from SPSC: an array of N independent,
// cache-line-padded consumer cursors, and producer back-pressure computed
// from min(C_i) instead of a single consumer cursor.
type SPMCRing[T any, PT Entry[T]] struct {
	_         pad
	producer  atomix.Uint64 // next sequence to be claimed
	_         pad
	cachedMin uint64 // producer's cached view of min(C_i)
	_         pad
	consumers []spmcConsumerCursor
	buffer    []T
	mask      uint64
}

// NewSPMCRing creates a ring with the given capacity (rounded up to the
// next power of two, minimum 2) and numConsumers independent consumer
// cursors (minimum 1).
func NewSPMCRing[T any, PT Entry[T]](capacity, numConsumers int) *SPMCRing[T, PT] {
	if capacity < 2 {
		panic("flux: capacity must be >= 2")
	}
	if numConsumers < 1 {
		panic("flux: num_consumers must be >= 1")
	}
	n := uint64(roundToPow2(capacity))
	return &SPMCRing[T, PT]{
		buffer:    make([]T, n),
		mask:      n - 1,
		consumers: make([]spmcConsumerCursor, numConsumers),
	}
}

func (r *SPMCRing[T, PT]) minConsumerCursor() uint64 {
	min := r.consumers[0].cursor.LoadAcquire()
	for i := 1; i < len(r.consumers); i++ {
		if c := r.consumers[i].cursor.LoadAcquire(); c < min {
			min = c
		}
	}
	return min
}

// TryClaim reserves up to n contiguous slots for the single producer,
// bounded by the capacity remaining above the slowest consumer.
func (r *SPMCRing[T, PT]) TryClaim(n int) (start uint64, slots []T, err error) {
	if n <= 0 {
		return 0, nil, nil
	}
	tail := r.producer.LoadRelaxed()
	capacity := r.mask + 1

	free := capacity - (tail - r.cachedMin)
	if uint64(n) > free {
		r.cachedMin = r.minConsumerCursor()
		free = capacity - (tail - r.cachedMin)
		if free == 0 {
			return 0, nil, ErrWouldBlock
		}
	}
	granted := uint64(n)
	if granted > free {
		granted = free
	}
	idx := tail & r.mask
	if idx+granted > capacity {
		granted = capacity - idx
	}
	return tail, r.buffer[idx : idx+granted], nil
}

// Publish stamps each claimed slot's own sequence field and advances the
// producer cursor with release ordering.
func (r *SPMCRing[T, PT]) Publish(start uint64, n int) {
	for i := 0; i < n; i++ {
		idx := (start + uint64(i)) & r.mask
		PT(&r.buffer[idx]).SetSequence(start + uint64(i) + 1)
	}
	r.producer.StoreRelease(start + uint64(n))
}

// ReadBatch returns up to maxN published slots starting at cursor for
// consumer index i, never spanning the physical end of the array.
func (r *SPMCRing[T, PT]) ReadBatch(i int, cursor uint64, maxN int) []T {
	if maxN <= 0 {
		return nil
	}
	tail := r.producer.LoadAcquire()
	if cursor >= tail {
		return nil
	}
	avail := tail - cursor
	n := uint64(maxN)
	if avail < n {
		n = avail
	}
	idx := cursor & r.mask
	capacity := r.mask + 1
	if idx+n > capacity {
		n = capacity - idx
	}
	return r.buffer[idx : idx+n]
}

// UpdateConsumer advances consumer i's cursor to cursor with release
// ordering.
func (r *SPMCRing[T, PT]) UpdateConsumer(i int, cursor uint64) {
	r.consumers[i].cursor.StoreRelease(cursor)
}

// ConsumerCursor returns consumer i's current cursor.
func (r *SPMCRing[T, PT]) ConsumerCursor(i int) uint64 {
	return r.consumers[i].cursor.LoadAcquire()
}

// NumConsumers returns the number of independent consumer cursors.
func (r *SPMCRing[T, PT]) NumConsumers() int { return len(r.consumers) }

// Cap returns the ring's capacity in slots.
func (r *SPMCRing[T, PT]) Cap() int { return int(r.mask + 1) }
