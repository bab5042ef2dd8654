// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shm

import (
	"encoding/binary"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/flux"
)

// SharedRing is a single-producer single-consumer sequenced ring buffer
// mapped into a file shared by two processes. It implements the same
// claim/publish/consume protocol as [flux.SPSCRing], generalized so the
// cursors and slot array live in mapped memory rather than process memory:
// atomic operations on the cursors are valid across the process boundary
// because naturally-aligned 64-bit stores/loads are atomic at the platform
// level regardless of which process performs them.
type SharedRing[T any, PT flux.Entry[T]] struct {
	f        *os.File
	region   mmap.MMap
	capacity uint64
	mask     uint64
	slotSize uint32
}

// Create creates a new shared ring backed by a file at path, sized for
// capacity slots of T (capacity rounds up to the next power of two). The
// creator must be the ring's sole producer.
func Create[T any, PT flux.Entry[T]](path string, capacity int) (*SharedRing[T, PT], error) {
	n := uint64(roundToPow2(capacity))
	var zero T
	slotSize := uint32(unsafe.Sizeof(zero))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, sharedIoError("create", err)
	}

	totalSize := int64(headerSize) + int64(n)*int64(slotSize)
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, sharedIoError("truncate", err)
	}

	region, err := mmap.MapRegion(f, int(totalSize), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, sharedIoError("mmap", err)
	}

	hdr := header{
		Magic:      [4]byte{'F', 'L', 'R', '1'},
		Version:    headerVersion,
		HeaderSize: headerSize,
		SlotSize:   slotSize,
		Capacity:   n,
		Mask:       n - 1,
	}
	encoded := encodeHeader(hdr)
	// Write everything after the first 8 bytes (magic+version) first, then
	// the magic+version word itself last with release ordering, so an
	// opener racing the creator observes either a fully-initialized header
	// or an all-zero one, never a half-written one.
	copy(region[8:offHeaderCRC32C+4], encoded[8:offHeaderCRC32C+4])
	magicVersionWord := (*atomix.Uint64)(unsafe.Pointer(&region[offMagic]))
	magicVersionWord.StoreRelease(binary.LittleEndian.Uint64(encoded[offMagic:offMagic+8]))

	return &SharedRing[T, PT]{f: f, region: region, capacity: n, mask: n - 1, slotSize: slotSize}, nil
}

// Open maps an existing shared ring file at path. The opener must be the
// ring's sole consumer and must use the same slot type T the creator used.
func Open[T any, PT flux.Entry[T]](path string) (*SharedRing[T, PT], error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, sharedIoError("open", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, sharedIoError("stat", err)
	}
	if info.Size() < headerSize {
		f.Close()
		return nil, mismatchError("file shorter than header size")
	}

	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, sharedIoError("mmap", err)
	}

	magicVersionWord := (*atomix.Uint64)(unsafe.Pointer(&region[offMagic]))
	if magicVersionWord.LoadAcquire() == 0 {
		region.Unmap()
		f.Close()
		return nil, mismatchError("magic not yet written by creator")
	}
	if string(region[offMagic:offMagic+4]) != headerMagic {
		region.Unmap()
		f.Close()
		return nil, mismatchError("magic mismatch")
	}
	if !validateHeaderCRC(region[:headerSize]) {
		region.Unmap()
		f.Close()
		return nil, mismatchError("header checksum mismatch")
	}
	hdr := decodeHeader(region[:headerSize])
	if hdr.Version != headerVersion {
		region.Unmap()
		f.Close()
		return nil, mismatchError("version mismatch")
	}
	if hdr.Capacity == 0 || hdr.Capacity&(hdr.Capacity-1) != 0 {
		region.Unmap()
		f.Close()
		return nil, mismatchError("capacity is not a power of two")
	}
	var zero T
	wantSlotSize := uint32(unsafe.Sizeof(zero))
	if hdr.SlotSize != wantSlotSize {
		region.Unmap()
		f.Close()
		return nil, mismatchError("slot size mismatch: this process's T disagrees with the creator's")
	}
	wantSize := int64(headerSize) + int64(hdr.Capacity)*int64(hdr.SlotSize)
	if info.Size() < wantSize {
		region.Unmap()
		f.Close()
		return nil, mismatchError("file shorter than header declares")
	}

	return &SharedRing[T, PT]{
		f:        f,
		region:   region,
		capacity: hdr.Capacity,
		mask:     hdr.Mask,
		slotSize: hdr.SlotSize,
	}, nil
}

// Close unmaps the region and closes the backing file. Callers must ensure
// no concurrent ring operations are in flight.
func (r *SharedRing[T, PT]) Close() error {
	if err := r.region.Unmap(); err != nil {
		return sharedIoError("munmap", err)
	}
	return r.f.Close()
}

func (r *SharedRing[T, PT]) producerCursor() *atomix.Uint64 {
	return (*atomix.Uint64)(unsafe.Pointer(&r.region[offProducer]))
}

func (r *SharedRing[T, PT]) consumerCursor() *atomix.Uint64 {
	return (*atomix.Uint64)(unsafe.Pointer(&r.region[offConsumer]))
}

func (r *SharedRing[T, PT]) slots() []T {
	base := unsafe.Pointer(&r.region[headerSize])
	return unsafe.Slice((*T)(base), r.capacity)
}

// TryClaim reserves up to n contiguous slots for the sole producer.
func (r *SharedRing[T, PT]) TryClaim(n int) (start uint64, slots []T, err error) {
	if n <= 0 {
		return 0, nil, nil
	}
	tail := r.producerCursor().LoadRelaxed()
	head := r.consumerCursor().LoadAcquire()
	free := r.capacity - (tail - head)
	if free == 0 {
		return 0, nil, flux.ErrWouldBlock
	}
	granted := uint64(n)
	if granted > free {
		granted = free
	}
	idx := tail & r.mask
	if idx+granted > r.capacity {
		granted = r.capacity - idx
	}
	buf := r.slots()
	return tail, buf[idx : idx+granted], nil
}

// Publish stamps each claimed slot's own sequence field and advances the
// producer cursor, both with release ordering so the peer process's
// acquire load of the cursor synchronizes with these slot writes.
func (r *SharedRing[T, PT]) Publish(start uint64, n int) {
	buf := r.slots()
	for i := 0; i < n; i++ {
		idx := (start + uint64(i)) & r.mask
		PT(&buf[idx]).SetSequence(start + uint64(i) + 1)
	}
	r.producerCursor().StoreRelease(start + uint64(n))
}

// ReadBatch returns up to maxN published slots starting at cursor for the
// sole consumer, never spanning the physical end of the array.
func (r *SharedRing[T, PT]) ReadBatch(cursor uint64, maxN int) []T {
	if maxN <= 0 {
		return nil
	}
	tail := r.producerCursor().LoadAcquire()
	if cursor >= tail {
		return nil
	}
	avail := tail - cursor
	n := uint64(maxN)
	if avail < n {
		n = avail
	}
	idx := cursor & r.mask
	if idx+n > r.capacity {
		n = r.capacity - idx
	}
	return r.slots()[idx : idx+n]
}

// UpdateConsumer advances the consumer cursor with release ordering.
func (r *SharedRing[T, PT]) UpdateConsumer(cursor uint64) {
	r.consumerCursor().StoreRelease(cursor)
}

// Cap returns the ring's capacity in slots.
func (r *SharedRing[T, PT]) Cap() int { return int(r.capacity) }

func sharedIoError(op string, cause error) error {
	return &flux.Error{Kind: flux.KindSharedMappingIo, Message: op, Cause: cause}
}

func mismatchError(reason string) error {
	return &flux.Error{Kind: flux.KindSharedMappingMismatch, Message: reason}
}

func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
