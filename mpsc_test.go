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

func TestMPSCRingSingleProducerRoundTrip(t *testing.T) {
	ring := flux.NewMPSCRing[flux.Slot16, *flux.Slot16](8)

	start, slots, err := ring.TryClaim(3)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	for i := range slots {
		slots[i].Payload = uint64(i + 1)
	}
	ring.Publish(start, len(slots))

	batch := ring.ReadBatch(0, 64)
	if len(batch) != 3 {
		t.Fatalf("ReadBatch returned %d slots, want 3", len(batch))
	}
	ring.UpdateConsumer(3)
}

func TestMPSCRingOutOfOrderPublishHidesGap(t *testing.T) {
	ring := flux.NewMPSCRing[flux.Slot8, *flux.Slot8](8)

	// Two producers each claim a disjoint range; the second claims after
	// the first but publishes before it, leaving a gap at sequence 0.
	startA, slotsA, err := ring.TryClaim(2)
	if err != nil {
		t.Fatalf("TryClaim A: %v", err)
	}
	startB, slotsB, err := ring.TryClaim(2)
	if err != nil {
		t.Fatalf("TryClaim B: %v", err)
	}

	ring.Publish(startB, len(slotsB))
	if batch := ring.ReadBatch(0, 64); len(batch) != 0 {
		t.Fatalf("ReadBatch before the gap is filled = %d slots, want 0", len(batch))
	}

	ring.Publish(startA, len(slotsA))
	batch := ring.ReadBatch(0, 64)
	if len(batch) != 4 {
		t.Fatalf("ReadBatch after gap fills = %d slots, want 4", len(batch))
	}
}

func TestMPSCRingFullReturnsWouldBlock(t *testing.T) {
	ring := flux.NewMPSCRing[flux.Slot8, *flux.Slot8](2)

	start, slots, err := ring.TryClaim(2)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	ring.Publish(start, len(slots))

	if _, _, err := ring.TryClaim(1); !errors.Is(err, flux.ErrWouldBlock) {
		t.Fatalf("TryClaim on full ring: err = %v, want ErrWouldBlock", err)
	}
}

func TestMPSCRingConcurrentProducers(t *testing.T) {
	if flux.RaceEnabled {
		t.Skip("skipping under race detector: cursor synchronization is lock-free, not race-detector visible")
	}
	const (
		producers   = 8
		perProducer = 20_000
		total       = producers * perProducer
	)
	ring := flux.NewMPSCRing[flux.Slot64, *flux.Slot64](1 << 14)

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			sent := 0
			for sent < perProducer {
				start, slots, err := ring.TryClaim(1)
				if err != nil {
					continue
				}
				slots[0].Payload = 1
				ring.Publish(start, 1)
				sent++
			}
		}()
	}

	var sum uint64
	cursor := uint64(0)
	read := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for read < total {
		batch := ring.ReadBatch(cursor, 256)
		if len(batch) == 0 {
			select {
			case <-done:
				if read >= total {
					break
				}
			default:
			}
			continue
		}
		for _, s := range batch {
			sum += s.Payload
		}
		cursor += uint64(len(batch))
		read += len(batch)
		ring.UpdateConsumer(cursor)
	}
	if sum != uint64(total) {
		t.Fatalf("sum = %d, want %d", sum, total)
	}
}
