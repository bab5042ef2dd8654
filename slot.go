// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"hash/crc32"

	"code.hybscloud.com/atomix"
)

// Entry is the slot trait every ring buffer engine in this package is
// generic over. A slot is a fixed-size, plain-old-data cell carrying its
// own sequence number; the ring itself never stores sequences out of band.
//
// Entry is expressed with Go's pointer-method generics idiom: T is the
// concrete slot type (Slot8, Slot16, Slot32, Slot64, or MessageSlot) and
// *T implements Entry[T], so a ring can hold a []T slice and still mutate
// elements in place through a *T obtained via indexing.
type Entry[T any] interface {
	*T
	// Sequence loads the slot's embedded sequence number with acquire
	// ordering, synchronizing with the release store in SetSequence.
	Sequence() uint64
	// SetSequence stores s as the slot's embedded sequence number with
	// release ordering. This is the publish step and must happen last,
	// after any payload fields are written: a consumer treats "in-slot
	// sequence equals s" as the readiness signal and an acquire load of
	// Sequence as the synchronization point for the payload it guards.
	SetSequence(s uint64)
	// Valid reports whether the slot currently holds a readable value.
	// For Slot8/16/32/64 this is "sequence != 0"; for MessageSlot it also
	// requires length > 0 and a matching checksum.
	Valid() bool
}

// Slot8 is the 8-byte slot: a single u64 that doubles as both sequence and
// payload. There is no room for a separate payload field, so Slot8 rings
// carry the raw sequence value itself as the message — matching how the
// original shared-memory examples push plain u64 counters through an
// SPSC-only mapping without a distinct per-slot "published" check.
type Slot8 struct {
	value atomix.Uint64
}

func (s *Slot8) Sequence() uint64     { return s.value.LoadAcquire() }
func (s *Slot8) SetSequence(v uint64) { s.value.StoreRelease(v) }
func (s *Slot8) Valid() bool          { return s.value.LoadAcquire() != 0 }

// Slot16 carries a sequence plus one u64 payload word.
type Slot16 struct {
	seq     atomix.Uint64
	Payload uint64
}

func (s *Slot16) Sequence() uint64     { return s.seq.LoadAcquire() }
func (s *Slot16) SetSequence(v uint64) { s.seq.StoreRelease(v) }
func (s *Slot16) Valid() bool          { return s.seq.LoadAcquire() != 0 }

// Slot32 carries a sequence plus three u64 payload words.
type Slot32 struct {
	seq     atomix.Uint64
	Payload [3]uint64
}

func (s *Slot32) Sequence() uint64     { return s.seq.LoadAcquire() }
func (s *Slot32) SetSequence(v uint64) { s.seq.StoreRelease(v) }
func (s *Slot32) Valid() bool          { return s.seq.LoadAcquire() != 0 }

// Slot64 carries a sequence plus seven u64 payload words.
type Slot64 struct {
	seq     atomix.Uint64
	Payload [7]uint64
}

func (s *Slot64) Sequence() uint64     { return s.seq.LoadAcquire() }
func (s *Slot64) SetSequence(v uint64) { s.seq.StoreRelease(v) }
func (s *Slot64) Valid() bool          { return s.seq.LoadAcquire() != 0 }

// MessageSlotPayloadCap is the maximum number of payload bytes a MessageSlot
// can carry: 128 bytes total, minus the 15-byte fixed header (8 sequence +
// 4 checksum + 2 length + 1 type). Fields are ordered widest-to-narrowest
// so the header packs with no interior padding, keeping the whole struct
// exactly 128 bytes.
const MessageSlotPayloadCap = 113

// MessageSlot is the 128-byte slot variant: it encodes a variable-length
// payload, up to [MessageSlotPayloadCap] bytes, inside a fixed footprint.
// The Length field is authoritative but is only trusted by readers after
// Checksum has been verified against the payload bytes.
//
// The checksum algorithm is CRC32 (IEEE / Ethernet polynomial), used
// for MessageSlot payloads and RUDP packets — both ends of any shared
// ring or RUDP session must agree on it. The shm header's own
// self-checksum is separate and uses CRC32-Castagnoli.
type MessageSlot struct {
	seq      atomix.Uint64
	Checksum uint32
	Length   uint16
	Type     uint8
	Payload  [MessageSlotPayloadCap]byte
}

func (s *MessageSlot) Sequence() uint64     { return s.seq.LoadAcquire() }
func (s *MessageSlot) SetSequence(v uint64) { s.seq.StoreRelease(v) }

// Valid reports whether the slot holds a complete, uncorrupted message:
// a nonzero length and a checksum that matches the payload prefix.
func (s *MessageSlot) Valid() bool {
	if s.Length == 0 || int(s.Length) > MessageSlotPayloadCap {
		return false
	}
	return s.Checksum == crc32.ChecksumIEEE(s.Payload[:s.Length])
}

// SetData copies up to MessageSlotPayloadCap bytes of data into the slot,
// truncating any excess, and recomputes Length and Checksum. It does not
// touch the sequence; callers publish by calling SetSequence last.
func (s *MessageSlot) SetData(data []byte) {
	n := copy(s.Payload[:], data)
	s.Length = uint16(n)
	s.Checksum = crc32.ChecksumIEEE(s.Payload[:n])
}

// Data returns the Length-sized valid prefix of the payload.
func (s *MessageSlot) Data() []byte {
	return s.Payload[:s.Length]
}

// VerifyChecksum reports whether Checksum matches the current payload
// prefix, independent of Length being nonzero. Used by callers that need
// to distinguish "empty but intact" from "corrupt" slots.
func (s *MessageSlot) VerifyChecksum() bool {
	return s.Checksum == crc32.ChecksumIEEE(s.Payload[:s.Length])
}

// Drainer signals that no more producers will publish to a ring.
//
// MPSCRing and MPMCRing implement this interface; SPSCRing and SPMCRing
// do not.
//
// Call Drain once all producers have stopped. The implementing rings
// record the signal; their claim and read paths do not consult it, so
// Drain does not change what a consumer can read.
type Drainer interface {
	Drain()
}
