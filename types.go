// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

// Ring is the claim/publish/consume protocol of the ring buffer engines.
// SPSCRing and MPSCRing implement it as written. SPMCRing's ReadBatch and
// UpdateConsumer take an extra consumer index, and MPMCRing reads through
// TryClaimRead/TryClaimOne guards instead of ReadBatch/UpdateConsumer, so
// neither of those two satisfies this interface. T is the concrete slot type
// (one of Slot8/16/32/64/MessageSlot); PT is its pointer-method Entry
// implementation, letting callers mutate slots in place.
//
// The protocol never blocks: every method returns immediately, signaling
// "no capacity" or "no data" via [ErrWouldBlock] rather than waiting.
// Waiting, if wanted, is layered on top with a [WaitStrategy].
type Ring[T any, PT Entry[T]] interface {
	// TryClaim reserves up to n contiguous slots for the calling producer.
	// It returns the starting sequence and a slice of exactly as many
	// slots as were granted (which may be fewer than n, or zero with
	// ErrWouldBlock if none are currently free). The caller owns the
	// returned slots exclusively until Publish is called for the same
	// range.
	TryClaim(n int) (start uint64, slots []T, err error)
	// Publish makes slots claimed starting at start visible to consumers.
	// It must be called exactly once for every successful TryClaim, with
	// the same start and the same length that was granted.
	Publish(start uint64, n int)
	// ReadBatch returns up to maxN slots starting at cursor that have
	// been published and are visible to the calling consumer. It never
	// spans the physical end of the backing array: if the available run
	// would wrap, only the contiguous head portion up to the array
	// boundary is returned, and the caller must call ReadBatch again
	// after UpdateConsumer to pick up the wrapped remainder.
	ReadBatch(cursor uint64, maxN int) []T
	// UpdateConsumer advances the calling consumer's cursor to cursor,
	// releasing the slots below it back to the producer side.
	UpdateConsumer(cursor uint64)
	// Cap returns the ring's capacity in slots.
	Cap() int
}
