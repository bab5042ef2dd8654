// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"errors"
	"sync"
	"testing"

	"code.hybscloud.com/flux"
)

func TestSPSCRingClaimPublishConsume(t *testing.T) {
	ring := flux.NewSPSCRing[flux.Slot16, *flux.Slot16](8)

	start, slots, err := ring.TryClaim(3)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	if start != 0 || len(slots) != 3 {
		t.Fatalf("TryClaim = (%d, %d slots), want (0, 3)", start, len(slots))
	}
	for i := range slots {
		slots[i].Payload = uint64(i + 1)
	}
	ring.Publish(start, len(slots))

	batch := ring.ReadBatch(0, 64)
	if len(batch) != 3 {
		t.Fatalf("ReadBatch returned %d slots, want 3", len(batch))
	}
	for i, s := range batch {
		if s.Payload != uint64(i+1) {
			t.Fatalf("batch[%d].Payload = %d, want %d", i, s.Payload, i+1)
		}
	}
	ring.UpdateConsumer(3)
	if got := ring.ConsumerCursor(); got != 3 {
		t.Fatalf("ConsumerCursor() = %d, want 3", got)
	}
}

func TestSPSCRingFullReturnsWouldBlock(t *testing.T) {
	ring := flux.NewSPSCRing[flux.Slot8, *flux.Slot8](2)

	start, slots, err := ring.TryClaim(2)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	ring.Publish(start, len(slots))

	_, _, err = ring.TryClaim(1)
	if !errors.Is(err, flux.ErrWouldBlock) {
		t.Fatalf("TryClaim on full ring: err = %v, want ErrWouldBlock", err)
	}

	if batch := ring.ReadBatch(0, 64); len(batch) != 2 {
		t.Fatalf("ReadBatch = %d slots, want 2", len(batch))
	}
	ring.UpdateConsumer(2)

	if _, _, err := ring.TryClaim(1); err != nil {
		t.Fatalf("TryClaim after drain: %v", err)
	}
}

func TestSPSCRingWrapAroundSplitsReadBatch(t *testing.T) {
	ring := flux.NewSPSCRing[flux.Slot8, *flux.Slot8](4)

	start, slots, _ := ring.TryClaim(4) // fills seq 0..3
	ring.Publish(start, len(slots))
	_ = ring.ReadBatch(0, 2) // consumer only takes seq 0,1
	ring.UpdateConsumer(2)

	start, slots, err := ring.TryClaim(2) // reuses indices 0,1 for seq 4,5
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	ring.Publish(start, len(slots))

	// cursor=2 sits mid-array; the published run now extends to seq 6,
	// which would cross the physical tail. ReadBatch must stop at the
	// array boundary rather than silently wrapping into index 0.
	batch := ring.ReadBatch(2, 10)
	if len(batch) != 2 {
		t.Fatalf("ReadBatch returned %d slots, want 2 (split at array boundary)", len(batch))
	}
}

func TestSPSCRingConcurrentProducerConsumer10M(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long-running concurrency test in -short mode")
	}
	if flux.RaceEnabled {
		t.Skip("skipping under race detector: cursor synchronization is lock-free, not race-detector visible")
	}
	const n = 10_000_000
	ring := flux.NewSPSCRing[flux.Slot16, *flux.Slot16](1 << 16)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for seq := uint64(1); seq <= n; seq++ {
			for {
				start, slots, err := ring.TryClaim(1)
				if err == nil {
					slots[0].Payload = seq
					ring.Publish(start, 1)
					break
				}
			}
		}
	}()

	var sum uint64
	go func() {
		defer wg.Done()
		cursor := uint64(0)
		read := 0
		for read < n {
			batch := ring.ReadBatch(cursor, 256)
			if len(batch) == 0 {
				continue
			}
			for _, s := range batch {
				sum += s.Payload
			}
			cursor += uint64(len(batch))
			read += len(batch)
			ring.UpdateConsumer(cursor)
		}
	}()

	wg.Wait()
	want := uint64(n) * (uint64(n) + 1) / 2
	if sum != want {
		t.Fatalf("sum = %d, want %d", sum, want)
	}
}
