// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux_test

import (
	"errors"
	"fmt"
	"testing"

	"code.hybscloud.com/flux"
)

func TestErrorIsMatchesOnKindNotIdentity(t *testing.T) {
	wrapped := fmt.Errorf("during claim: %w", &flux.Error{Kind: flux.KindRingFull, Message: "ring is full"})
	if !errors.Is(wrapped, flux.ErrRingFull) {
		t.Fatal("errors.Is should match on Kind even for a distinct *Error value")
	}
	if errors.Is(wrapped, flux.ErrRingEmpty) {
		t.Fatal("errors.Is should not match a different Kind")
	}
}

func TestIsRingFullAcceptsWouldBlock(t *testing.T) {
	if !flux.IsRingFull(flux.ErrWouldBlock) {
		t.Fatal("IsRingFull(ErrWouldBlock) = false, want true")
	}
	if !flux.IsRingFull(flux.ErrRingFull) {
		t.Fatal("IsRingFull(ErrRingFull) = false, want true")
	}
	if flux.IsRingFull(flux.ErrRudpProtocolError) {
		t.Fatal("IsRingFull(ErrRudpProtocolError) = true, want false")
	}
}

func TestIsRingEmptyAcceptsWouldBlock(t *testing.T) {
	if !flux.IsRingEmpty(flux.ErrWouldBlock) {
		t.Fatal("IsRingEmpty(ErrWouldBlock) = false, want true")
	}
	if !flux.IsRingEmpty(flux.ErrRingEmpty) {
		t.Fatal("IsRingEmpty(ErrRingEmpty) = false, want true")
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &flux.Error{Kind: flux.KindSharedMappingIo, Message: "sync failed", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the wrapped cause via Unwrap")
	}
}
