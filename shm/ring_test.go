// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shm_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"code.hybscloud.com/flux"
	"code.hybscloud.com/flux/shm"
)

func TestSharedRingCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.flr1")

	producer, err := shm.Create[flux.Slot16, *flux.Slot16](path, 8)
	require.NoError(t, err)
	defer producer.Close()

	consumer, err := shm.Open[flux.Slot16, *flux.Slot16](path)
	require.NoError(t, err)
	defer consumer.Close()

	start, slots, err := producer.TryClaim(3)
	require.NoError(t, err)
	for i := range slots {
		slots[i].Payload = uint64(i + 1)
	}
	producer.Publish(start, len(slots))

	batch := consumer.ReadBatch(0, 64)
	require.Len(t, batch, 3)
	for i, s := range batch {
		require.Equal(t, uint64(i+1), s.Payload)
	}
	consumer.UpdateConsumer(3)
}

func TestSharedRingOpenRejectsSlotSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.flr1")

	producer, err := shm.Create[flux.Slot8, *flux.Slot8](path, 8)
	require.NoError(t, err)
	defer producer.Close()

	_, err = shm.Open[flux.Slot64, *flux.Slot64](path)
	require.ErrorIs(t, err, flux.ErrSharedMappingMismatch)
}

func TestSharedRingOpenRejectsMissingFile(t *testing.T) {
	_, err := shm.Open[flux.Slot8, *flux.Slot8](filepath.Join(t.TempDir(), "does-not-exist"))
	require.ErrorIs(t, err, flux.ErrSharedMappingIo)
}

func TestSharedRingBackpressureAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.flr1")

	producer, err := shm.Create[flux.Slot8, *flux.Slot8](path, 2)
	require.NoError(t, err)
	defer producer.Close()
	consumer, err := shm.Open[flux.Slot8, *flux.Slot8](path)
	require.NoError(t, err)
	defer consumer.Close()

	start, slots, err := producer.TryClaim(2)
	require.NoError(t, err)
	producer.Publish(start, len(slots))

	_, _, err = producer.TryClaim(1)
	require.ErrorIs(t, err, flux.ErrWouldBlock)

	consumer.ReadBatch(0, 64)
	consumer.UpdateConsumer(2)

	_, _, err = producer.TryClaim(1)
	require.NoError(t, err)
}
