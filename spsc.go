// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "code.hybscloud.com/atomix"

// SPSCRing is a single-producer single-consumer sequenced ring buffer.
//
// It is Lamport's ring buffer with a producer-side cached cursor: the
// producer caches the consumer's cursor and only reloads it (with acquire
// ordering) when its cached view says the ring looks full. The consumer
// keeps no cache; ReadBatch loads the producer cursor with acquire
// ordering on every call. T is the concrete slot type; PT is its Entry
// implementation.
type SPSCRing[T any, PT Entry[T]] struct {
	_            pad
	consumer     atomix.Uint64 // next sequence the consumer will read
	_            pad
	producer     atomix.Uint64 // next sequence to be claimed
	_            pad
	cachedHead   uint64 // producer's cached view of the consumer cursor
	_            pad
	buffer       []T
	mask         uint64
}

// NewSPSCRing creates a ring with the given capacity, rounded up to the
// next power of two (minimum 2).
func NewSPSCRing[T any, PT Entry[T]](capacity int) *SPSCRing[T, PT] {
	if capacity < 2 {
		panic("flux: capacity must be >= 2")
	}
	n := uint64(roundToPow2(capacity))
	return &SPSCRing[T, PT]{
		buffer: make([]T, n),
		mask:   n - 1,
	}
}

// TryClaim reserves up to n contiguous slots for the single producer. The
// producer cursor itself is not advanced until Publish is called; between
// TryClaim and Publish the caller has exclusive write access to the
// returned slots.
func (r *SPSCRing[T, PT]) TryClaim(n int) (start uint64, slots []T, err error) {
	if n <= 0 {
		return 0, nil, nil
	}
	tail := r.producer.LoadRelaxed()
	capacity := r.mask + 1

	free := capacity - (tail - r.cachedHead)
	if uint64(n) > free {
		r.cachedHead = r.consumer.LoadAcquire()
		free = capacity - (tail - r.cachedHead)
		if free == 0 {
			return 0, nil, ErrWouldBlock
		}
	}
	granted := uint64(n)
	if granted > free {
		granted = free
	}
	idx := tail & r.mask
	end := idx + granted
	if end > capacity {
		granted = capacity - idx
	}
	return tail, r.buffer[idx : idx+granted], nil
}

// Publish stamps each claimed slot's own sequence field and then advances
// the producer cursor with release ordering, making the range
// [start, start+n) visible to the consumer.
func (r *SPSCRing[T, PT]) Publish(start uint64, n int) {
	for i := 0; i < n; i++ {
		idx := (start + uint64(i)) & r.mask
		PT(&r.buffer[idx]).SetSequence(start + uint64(i) + 1)
	}
	r.producer.StoreRelease(start + uint64(n))
}

// ReadBatch returns up to maxN published slots starting at cursor, never
// spanning the physical end of the backing array.
func (r *SPSCRing[T, PT]) ReadBatch(cursor uint64, maxN int) []T {
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

// UpdateConsumer advances the consumer cursor to cursor with release
// ordering, releasing the corresponding slots back to the producer.
func (r *SPSCRing[T, PT]) UpdateConsumer(cursor uint64) {
	r.consumer.StoreRelease(cursor)
}

// Cap returns the ring's capacity in slots.
func (r *SPSCRing[T, PT]) Cap() int { return int(r.mask + 1) }

// ProducerCursor returns the current producer cursor (next sequence to be
// claimed), loaded with acquire ordering.
func (r *SPSCRing[T, PT]) ProducerCursor() uint64 { return r.producer.LoadAcquire() }

// ConsumerCursor returns the current consumer cursor (next sequence the
// consumer will read), loaded with acquire ordering.
func (r *SPSCRing[T, PT]) ConsumerCursor() uint64 { return r.consumer.LoadAcquire() }
