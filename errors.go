// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Kind classifies an [Error] into the closed taxonomy of conditions this
// module can return. Callers should switch on Kind (or use the Is* helpers
// below) rather than comparing error values directly, since most Kinds wrap
// additional context.
type Kind uint8

const (
	// KindInvalidConfig indicates a ring, shared mapping, or RUDP session
	// was constructed with an invalid configuration (bad capacity, zero
	// slot size, contradictory consumer count, and similar).
	KindInvalidConfig Kind = iota + 1
	// KindRingFull indicates a producer-side claim could not proceed
	// because the ring has no free slots for the calling producer.
	KindRingFull
	// KindRingEmpty indicates a consumer-side read could not proceed
	// because the ring has no published slots for the calling consumer.
	KindRingEmpty
	// KindSharedMappingMismatch indicates an existing shared-ring file was
	// opened but its header (magic, version, capacity, or slot size)
	// disagrees with what the opener expected.
	KindSharedMappingMismatch
	// KindSharedMappingIo indicates a filesystem or mmap operation failed
	// while creating, opening, sizing, mapping, or unmapping a shared
	// ring's backing file.
	KindSharedMappingIo
	// KindRudpWindowFull indicates the RUDP sender's outstanding window
	// is at capacity; Send must be retried once the window makes room.
	KindRudpWindowFull
	// KindRudpChecksumFailure indicates a received packet failed its
	// checksum. This kind is internal: it is never returned to callers,
	// only recorded in metrics, since a failed checksum is
	// silently treated as a dropped packet (the sender's retransmit
	// timer recovers it).
	KindRudpChecksumFailure
	// KindRudpSessionFailed indicates a RUDP session has been torn down
	// (a packet exceeded its retransmit cap, or the session was closed)
	// and can no longer send. Protocol errors and an idle peer do not
	// fail a session.
	KindRudpSessionFailed
	// KindRudpProtocolError indicates a received packet violated the
	// wire protocol in a way a checksum cannot catch (truncated header,
	// wrong magic or version, payload_len disagreeing with the datagram
	// size).
	KindRudpProtocolError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidConfig:
		return "invalid_config"
	case KindRingFull:
		return "ring_full"
	case KindRingEmpty:
		return "ring_empty"
	case KindSharedMappingMismatch:
		return "shared_mapping_mismatch"
	case KindSharedMappingIo:
		return "shared_mapping_io"
	case KindRudpWindowFull:
		return "rudp_window_full"
	case KindRudpChecksumFailure:
		return "rudp_checksum_failure"
	case KindRudpSessionFailed:
		return "rudp_session_failed"
	case KindRudpProtocolError:
		return "rudp_protocol_error"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by this module and its
// subpackages. It carries a closed [Kind], an optional wrapped cause, and a
// free-form message for diagnostics.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("flux: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("flux: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, flux.ErrRingFull) style checks against the sentinel
// values below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinel values for errors.Is comparisons. Each carries no cause or
// message and exists purely as a comparison target.
var (
	ErrInvalidConfig          = &Error{Kind: KindInvalidConfig, Message: "invalid configuration"}
	ErrRingFull               = &Error{Kind: KindRingFull, Message: "ring is full"}
	ErrRingEmpty              = &Error{Kind: KindRingEmpty, Message: "ring is empty"}
	ErrSharedMappingMismatch  = &Error{Kind: KindSharedMappingMismatch, Message: "shared mapping header mismatch"}
	ErrSharedMappingIo        = &Error{Kind: KindSharedMappingIo, Message: "shared mapping io error"}
	ErrRudpWindowFull         = &Error{Kind: KindRudpWindowFull, Message: "rudp send window is full"}
	errRudpChecksumFailure    = &Error{Kind: KindRudpChecksumFailure, Message: "rudp packet checksum mismatch"}
	ErrRudpSessionFailed      = &Error{Kind: KindRudpSessionFailed, Message: "rudp session is no longer usable"}
	ErrRudpProtocolError      = &Error{Kind: KindRudpProtocolError, Message: "rudp protocol violation"}
)

// ErrWouldBlock is the non-failure control-flow signal shared with the
// sibling lock-free queue library: a ring claim or read that cannot proceed
// right now, without any other error condition. It is returned instead of
// [ErrRingFull]/[ErrRingEmpty] by the low-level ring engines so that
// application code written against both libraries' backoff loops
// (iox.Backoff, spin.Wait) keeps working unmodified; the higher-level
// taxonomy above is reserved for conditions a backoff loop should not just
// retry through (bad config, a torn-down session, a corrupt mapping).
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates an operation would block.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }

// IsRingFull reports whether err is (or wraps) [ErrRingFull] or
// [ErrWouldBlock] — the two signals a producer sees when a ring has no
// room for it.
func IsRingFull(err error) bool {
	return errors.Is(err, ErrRingFull) || IsWouldBlock(err)
}

// IsRingEmpty reports whether err is (or wraps) [ErrRingEmpty] or
// [ErrWouldBlock] — the two signals a consumer sees when a ring has
// nothing for it to read.
func IsRingEmpty(err error) bool {
	return errors.Is(err, ErrRingEmpty) || IsWouldBlock(err)
}

// IsChecksumFailure reports whether err is an internal checksum-failure
// condition. Exported so the rudp package can recognize (and count) it in
// its receive loop and tests; application code never receives this Kind.
func IsChecksumFailure(err error) bool {
	return errors.Is(err, errRudpChecksumFailure)
}
