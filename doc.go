// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package flux provides sequenced ring buffers — fixed-size-slot FIFO
// engines sharing one claim/publish/consume protocol across four
// concurrency contracts — plus two extensions that reuse the same
// protocol: a shared-memory (mmap) cross-process ring in the shm
// subpackage, and a reliable UDP transport in the rudp subpackage.
//
// # Quick Start
//
//	ring := flux.NewSPSCRing[flux.Slot16, *flux.Slot16](1024)
//
//	start, slots, err := ring.TryClaim(1)
//	if err != nil {
//	    // ErrWouldBlock: no room right now
//	}
//	slots[0].Payload = 42
//	ring.Publish(start, len(slots))
//
//	batch := ring.ReadBatch(ring.ConsumerCursor(), 64)
//	for i := range batch {
//	    _ = batch[i].Payload
//	}
//	ring.UpdateConsumer(ring.ConsumerCursor() + uint64(len(batch)))
//
// # Ring Variants
//
//   - SPSCRing: single producer, single consumer. The reference
//     implementation of the protocol.
//   - SPMCRing: single producer, N consumers that each independently
//     observe every published message in order (broadcast, not
//     work-distribution). Back-pressure is bounded by the slowest
//     consumer cursor.
//   - MPSCRing: N producers contend for a claim via CAS; a single
//     consumer drains the longest contiguous run of slots whose own
//     embedded sequence matches what it expects next.
//   - MPMCRing: both sides contended. Producers claim the same way as
//     MPSCRing; each published message is read by exactly one of N
//     competing consumers, coordinated by a completion tracker
//     (see completion_tracker.go) so that an in-flight, unfinished read
//     still blocks the producer from reclaiming that slot.
//
// # Slot Types
//
// Every ring is generic over a slot type implementing [Entry]: Slot8,
// Slot16, Slot32, Slot64 (fixed words, no explicit length), or
// MessageSlot (a 128-byte slot with a variable-length payload up to
// [MessageSlotPayloadCap] bytes, validated by CRC32 checksum). Pick the
// smallest slot that holds the payload; wider slots cost more cache
// traffic per claim/publish/consume round trip.
//
// # Error Handling
//
// All operations are non-blocking and total. TryClaim/ReadBatch return
// [ErrWouldBlock] rather than waiting when there is no room or no data;
// this is a control-flow signal, not a failure — wrap it in a
// [WaitStrategy] loop if blocking is wanted:
//
//	ws := &flux.SpinWait{}
//	for {
//	    start, slots, err := ring.TryClaim(1)
//	    if err == nil {
//	        break
//	    }
//	    ws.Wait()
//	}
//
// Conditions that are not simple backpressure (bad configuration, a
// corrupt shared mapping, a failed RUDP session) are returned as
// *[Error] values with a closed [Kind] taxonomy; see errors.go.
//
// # Thread Safety
//
// Each ring variant's concurrency contract is exactly what its name
// says: an SPSCRing's TryClaim must only ever be called from one
// goroutine at a time, same for its ReadBatch/UpdateConsumer pair.
// MPSCRing and MPMCRing's TryClaim/TryClaimRead are safe from any number
// of concurrent goroutines; calling a single-sided method from more
// goroutines than its contract allows corrupts ring state silently —
// there is no runtime check, by design, since that check would cost
// every call its lock-free property.
//
// # Observability
//
// [Metrics] holds plain atomic counters for messages/bytes sent and
// received, backpressure events, and RUDP-specific retransmit/NAK/
// checksum-failure counts. It is not wired into the ring hot paths
// automatically; call its Record* methods from your own publish/consume
// loop, or rely on the rudp package, which already does this at its
// sender/receiver loops. [PrometheusExporter] optionally mirrors a
// Metrics snapshot into Prometheus counters for processes that scrape.
package flux
