// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "code.hybscloud.com/atomix"

// completionTracker implements the read side of the MPMC competing-consumer
// protocol: consumers share a single "claim cursor" naming the next
// sequence to read, and commit completed reads through a read-then-commit
// pattern so that out-of-order completion (consumer B finishes before
// consumer A, who claimed an earlier sequence) cannot let the producer
// overwrite a slot A hasn't read yet.
//
// The per-slot completed-flag array is sized to exactly match the ring's
// own capacity (always a power of two), so a flag's index and its slot's
// buffer index are the same `seq & mask` — two distinct in-flight
// sequences can never alias the same flag, which would otherwise let one
// consumer's completion incorrectly advance the committed cursor past a
// slot another consumer has claimed but not yet read.
type completionTracker struct {
	_               pad
	claimCursor     atomix.Uint64 // next sequence to be claimed by some consumer
	_               pad
	completedCursor atomix.Uint64 // longest contiguous prefix of completed reads
	_               pad
	completed       []atomix.Bool
	mask            uint64
}

func newCompletionTracker(capacity uint64) *completionTracker {
	return &completionTracker{completed: make([]atomix.Bool, capacity), mask: capacity - 1}
}

// tryClaim claims a single sequence for the calling consumer, bounded
// above by producerCursor (one past the highest published sequence, an
// exclusive bound). It returns ErrWouldBlock if the claim cursor has
// caught up to the producer.
func (c *completionTracker) tryClaim(producerCursor uint64) (uint64, error) {
	for {
		claim := c.claimCursor.LoadAcquire()
		if claim >= producerCursor {
			return 0, ErrWouldBlock
		}
		if c.claimCursor.CompareAndSwapAcqRel(claim, claim+1) {
			return claim, nil
		}
	}
}

// tryClaimBatch claims up to n contiguous sequences, bounded above by
// producerCursor and by the completion-tracker's flag array size (a
// batch can never be larger than the window of possibly-in-flight reads).
func (c *completionTracker) tryClaimBatch(n int, producerCursor uint64) (start uint64, granted int, err error) {
	if n <= 0 {
		return 0, 0, nil
	}
	if slots := c.mask + 1; uint64(n) > slots {
		n = int(slots)
	}
	for {
		claim := c.claimCursor.LoadAcquire()
		avail := producerCursor - claim
		if avail == 0 {
			return 0, 0, ErrWouldBlock
		}
		g := uint64(n)
		if g > avail {
			g = avail
		}
		if c.claimCursor.CompareAndSwapAcqRel(claim, claim+g) {
			return claim, int(g), nil
		}
	}
}

// complete marks seq as completed and attempts to advance the committed
// (completed) cursor over the longest contiguous completed prefix,
// clearing flags as it passes over them so the flag array can be reused.
func (c *completionTracker) complete(seq uint64) {
	c.completed[seq&c.mask].StoreRelease(true)
	c.tryAdvanceCompleted()
}

// completeBatch marks [start, start+n) as completed in one call.
func (c *completionTracker) completeBatch(start uint64, n int) {
	for i := 0; i < n; i++ {
		c.completed[(start+uint64(i))&c.mask].StoreRelease(true)
	}
	c.tryAdvanceCompleted()
}

func (c *completionTracker) tryAdvanceCompleted() {
	for {
		cur := c.completedCursor.LoadAcquire()
		idx := cur & c.mask
		if !c.completed[idx].LoadAcquire() {
			return
		}
		if !c.completedCursor.CompareAndSwapAcqRel(cur, cur+1) {
			continue
		}
		c.completed[idx].StoreRelease(false)
	}
}

// completedCursorValue returns the longest contiguous prefix of completed
// reads; this is what the producer side uses for back-pressure.
func (c *completionTracker) completedCursorValue() uint64 {
	return c.completedCursor.LoadAcquire()
}

// claimCursorValue returns the next sequence some consumer will claim.
func (c *completionTracker) claimCursorValue() uint64 {
	return c.claimCursor.LoadAcquire()
}

// ReadGuard scopes a single completed-consumer read: Release must be
// called exactly once, typically via defer, to mark the read complete and
// let the producer reclaim the slot. Go has no destructors, so unlike the
// Rust completion tracker this guard relies on the caller's defer rather
// than a Drop impl — failing to call Release leaves the slot permanently
// unclaimed from the producer's perspective.
type ReadGuard[T any] struct {
	tracker *completionTracker
	seq     uint64
	slot    *T
}

// Slot returns the claimed slot.
func (g *ReadGuard[T]) Slot() *T { return g.slot }

// Sequence returns the claimed sequence.
func (g *ReadGuard[T]) Sequence() uint64 { return g.seq }

// Release marks the read complete. Safe to call at most once.
func (g *ReadGuard[T]) Release() { g.tracker.complete(g.seq) }

// BatchReadGuard scopes a contiguous batch of completed-consumer reads.
type BatchReadGuard[T any] struct {
	tracker *completionTracker
	start   uint64
	slots   []T
}

// Slots returns the claimed slots.
func (g *BatchReadGuard[T]) Slots() []T { return g.slots }

// Start returns the first claimed sequence.
func (g *BatchReadGuard[T]) Start() uint64 { return g.start }

// Release marks the whole batch complete. Safe to call at most once.
func (g *BatchReadGuard[T]) Release() { g.tracker.completeBatch(g.start, len(g.slots)) }
