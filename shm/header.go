// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shm maps a single-producer single-consumer sequenced ring buffer
// into a backing file shared by two processes, reusing the same
// claim/publish/consume protocol the root package's SPSCRing implements
// in-process.
package shm

import (
	"encoding/binary"
	"hash/crc32"
)

// Wire layout constants for the shared ring's fixed header, grounded on the
// SLC1 file format: a magic-tagged, versioned, CRC-self-validating header
// followed by a flat slot array, all offsets fixed so both processes agree
// on layout without any runtime negotiation.
const (
	headerMagic   = "FLR1"
	headerVersion = uint32(1)

	// headerSize is fixed and page-aligned so the slot array always
	// starts at a page boundary, independent of slot size or capacity.
	headerSize = 4096

	offMagic        = 0x000 // [4]byte
	offVersion      = 0x004 // uint32
	offHeaderSize   = 0x008 // uint32
	offSlotSize     = 0x00C // uint32
	offCapacity     = 0x010 // uint64
	offMask         = 0x018 // uint64
	offProducer     = 0x020 // uint64, cache-line padded region starts here
	offConsumer     = 0x060 // uint64, its own cache line
	offHeaderCRC32C = 0x0A0 // uint32
	offReservedFrom = 0x0A4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// header mirrors the on-disk/on-mapping layout. Producer and consumer
// cursors are not part of this struct — SharedRing's producerCursor and
// consumerCursor methods address them directly in the mapped bytes so
// stores are visible to the peer process — header is used only for the
// create-time encode and the open-time verification snapshot.
type header struct {
	Magic      [4]byte
	Version    uint32
	HeaderSize uint32
	SlotSize   uint32
	Capacity   uint64
	Mask       uint64
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[offMagic:], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offHeaderSize:], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[offSlotSize:], h.SlotSize)
	binary.LittleEndian.PutUint64(buf[offCapacity:], h.Capacity)
	binary.LittleEndian.PutUint64(buf[offMask:], h.Mask)
	// Producer/consumer cursors start at zero; the zeroed mapping already
	// satisfies that, no explicit write needed before the CRC is computed.
	crc := computeHeaderCRC(buf)
	binary.LittleEndian.PutUint32(buf[offHeaderCRC32C:], crc)
	return buf
}

func decodeHeader(buf []byte) header {
	var h header
	copy(h.Magic[:], buf[offMagic:offMagic+4])
	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[offHeaderSize:])
	h.SlotSize = binary.LittleEndian.Uint32(buf[offSlotSize:])
	h.Capacity = binary.LittleEndian.Uint64(buf[offCapacity:])
	h.Mask = binary.LittleEndian.Uint64(buf[offMask:])
	return h
}

// computeHeaderCRC checksums the fixed header fields (magic through mask,
// the bytes before offProducer). The live producer/consumer cursors and
// the CRC field itself are outside the checksummed range, so the CRC stays
// valid while the ring is in use.
func computeHeaderCRC(buf []byte) uint32 {
	return crc32.Checksum(buf[:offProducer], castagnoli)
}

func validateHeaderCRC(buf []byte) bool {
	stored := binary.LittleEndian.Uint32(buf[offHeaderCRC32C:])
	return stored == computeHeaderCRC(buf)
}
