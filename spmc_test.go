// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"errors"
	"testing"

	"code.hybscloud.com/flux"
)

func TestSPMCRingBroadcastsToAllConsumers(t *testing.T) {
	const numConsumers = 3
	ring := flux.NewSPMCRing[flux.Slot16, *flux.Slot16](8, numConsumers)

	start, slots, err := ring.TryClaim(4)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	for i := range slots {
		slots[i].Payload = uint64(i + 1)
	}
	ring.Publish(start, len(slots))

	for i := 0; i < numConsumers; i++ {
		batch := ring.ReadBatch(i, 0, 64)
		if len(batch) != 4 {
			t.Fatalf("consumer %d ReadBatch = %d slots, want 4 (every consumer sees every message)", i, len(batch))
		}
		for j, s := range batch {
			if s.Payload != uint64(j+1) {
				t.Fatalf("consumer %d batch[%d].Payload = %d, want %d", i, j, s.Payload, j+1)
			}
		}
		ring.UpdateConsumer(i, 4)
	}
}

func TestSPMCRingBackpressureBoundBySlowestConsumer(t *testing.T) {
	ring := flux.NewSPMCRing[flux.Slot8, *flux.Slot8](4, 2)

	start, slots, err := ring.TryClaim(4)
	if err != nil {
		t.Fatalf("TryClaim: %v", err)
	}
	ring.Publish(start, len(slots))

	// Consumer 0 catches up fully; consumer 1 reads nothing. The
	// producer must still be blocked, since back-pressure is min(C_i).
	ring.ReadBatch(0, 0, 64)
	ring.UpdateConsumer(0, 4)

	if _, _, err := ring.TryClaim(1); !errors.Is(err, flux.ErrWouldBlock) {
		t.Fatalf("TryClaim while consumer 1 lags: err = %v, want ErrWouldBlock", err)
	}

	// Once the slow consumer advances, the producer unblocks.
	ring.ReadBatch(1, 0, 64)
	ring.UpdateConsumer(1, 4)

	if _, _, err := ring.TryClaim(1); err != nil {
		t.Fatalf("TryClaim after slow consumer catches up: %v", err)
	}
}

func TestSPMCRingConsumerCursorIndependence(t *testing.T) {
	ring := flux.NewSPMCRing[flux.Slot8, *flux.Slot8](8, 2)

	start, slots, _ := ring.TryClaim(2)
	ring.Publish(start, len(slots))

	ring.UpdateConsumer(0, 2)
	if got := ring.ConsumerCursor(0); got != 2 {
		t.Fatalf("ConsumerCursor(0) = %d, want 2", got)
	}
	if got := ring.ConsumerCursor(1); got != 0 {
		t.Fatalf("ConsumerCursor(1) = %d, want 0 (consumers must not affect each other)", got)
	}
}
