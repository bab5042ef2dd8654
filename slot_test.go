// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"testing"

	"code.hybscloud.com/flux"
)

func TestSlot8Sequence(t *testing.T) {
	var s flux.Slot8
	if s.Valid() {
		t.Fatal("zero-value Slot8 must be invalid")
	}
	s.SetSequence(7)
	if got := s.Sequence(); got != 7 {
		t.Fatalf("Sequence() = %d, want 7", got)
	}
	if !s.Valid() {
		t.Fatal("Slot8 with nonzero sequence must be valid")
	}
}

func TestSlot16Payload(t *testing.T) {
	var s flux.Slot16
	s.Payload = 0xDEADBEEF
	s.SetSequence(1)
	if s.Payload != 0xDEADBEEF {
		t.Fatalf("Payload = %x, want 0xDEADBEEF", s.Payload)
	}
}

func TestMessageSlotRoundTrip(t *testing.T) {
	var s flux.MessageSlot
	data := []byte("hello, flux")
	s.SetData(data)
	if s.Length != uint16(len(data)) {
		t.Fatalf("Length = %d, want %d", s.Length, len(data))
	}
	s.SetSequence(1)
	if !s.Valid() {
		t.Fatal("slot with valid checksum must report Valid()")
	}
	if got := string(s.Data()); got != string(data) {
		t.Fatalf("Data() = %q, want %q", got, data)
	}
}

func TestMessageSlotChecksumMismatch(t *testing.T) {
	var s flux.MessageSlot
	s.SetData([]byte("original"))
	s.SetSequence(1)
	// Corrupt the payload in place without updating the checksum.
	s.Payload[0] ^= 0xFF
	if s.VerifyChecksum() {
		t.Fatal("corrupted payload must fail checksum verification")
	}
	if s.Valid() {
		t.Fatal("corrupted slot must not be Valid()")
	}
}

func TestMessageSlotTruncatesOversizedPayload(t *testing.T) {
	var s flux.MessageSlot
	huge := make([]byte, flux.MessageSlotPayloadCap+50)
	for i := range huge {
		huge[i] = byte(i)
	}
	s.SetData(huge)
	if int(s.Length) != flux.MessageSlotPayloadCap {
		t.Fatalf("Length = %d, want truncation to %d", s.Length, flux.MessageSlotPayloadCap)
	}
}
