// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rudp implements a reliable UDP transport: sequence/ACK/NAK
// retransmission with a sender sliding window and a receiver reorder
// buffer, layered over two of the root package's SPSC rings (one for
// outgoing application payloads, one for in-order delivered payloads).
package rudp

import (
	"encoding/binary"
	"hash/crc32"

	"code.hybscloud.com/flux"
)

// packetType identifies a wire packet's role.
type packetType uint8

const (
	typeData packetType = iota + 1
	typeAck
	typeNak
	typeHeartbeat
)

// Wire header layout, all little-endian, bit-exact across a deployed pair:
//
//	magic        uint32  offset 0
//	version      uint8   offset 4
//	type         uint8   offset 5
//	flags        uint16  offset 6
//	sequence     uint64  offset 8
//	ack_sequence uint64  offset 16
//	payload_len  uint16  offset 24
//	checksum     uint32  offset 26
//	payload      ...     offset 30
const (
	headerSize = 30

	offMagic    = 0
	offVersion  = 4
	offType     = 5
	offFlags    = 6
	offSeq      = 8
	offAckSeq   = 16
	offPayload  = 24
	offChecksum = 26
	offBody     = 30
)

// ProtocolMagic and ProtocolVersion identify this wire format. Both ends of
// a deployed pair must agree on these values before a session is usable.
const (
	ProtocolMagic  uint32 = 0x52554450 // "RUDP"
	ProtocolVersion uint8 = 1
)

// MaxPayload is the largest payload a single packet carries; larger
// application messages must be fragmented by the caller before Send. This
// is bounded by [flux.MessageSlotPayloadCap], not a link MTU: both of a
// session's internal rings move payloads through [flux.MessageSlot], so a
// payload that would not fit a slot would be silently truncated at the
// ring boundary rather than on the wire.
const MaxPayload = flux.MessageSlotPayloadCap

// packet is the decoded, in-memory form of one wire datagram.
type packet struct {
	typ       packetType
	flags     uint16
	sequence  uint64
	ackSeq    uint64
	payload   []byte
}

// encode serializes p into a newly allocated datagram, computing the
// checksum over the header (with the checksum field zeroed) plus payload.
func (p *packet) encode() []byte {
	buf := make([]byte, offBody+len(p.payload))
	binary.LittleEndian.PutUint32(buf[offMagic:], ProtocolMagic)
	buf[offVersion] = ProtocolVersion
	buf[offType] = byte(p.typ)
	binary.LittleEndian.PutUint16(buf[offFlags:], p.flags)
	binary.LittleEndian.PutUint64(buf[offSeq:], p.sequence)
	binary.LittleEndian.PutUint64(buf[offAckSeq:], p.ackSeq)
	binary.LittleEndian.PutUint16(buf[offPayload:], uint16(len(p.payload)))
	copy(buf[offBody:], p.payload)
	// checksum field left zero while computing.
	sum := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(buf[offChecksum:], sum)
	return buf
}

// decodePacket parses a received datagram, verifying magic, version, and
// checksum. A checksum failure is reported via flux's internal checksum-
// failure kind so callers can count it without it becoming an application-
// visible error.
func decodePacket(data []byte) (*packet, error) {
	if len(data) < headerSize {
		return nil, protocolError("datagram shorter than header")
	}
	if binary.LittleEndian.Uint32(data[offMagic:]) != ProtocolMagic {
		return nil, protocolError("magic mismatch")
	}
	if data[offVersion] != ProtocolVersion {
		return nil, protocolError("version mismatch")
	}
	payloadLen := int(binary.LittleEndian.Uint16(data[offPayload:]))
	if headerSize+payloadLen != len(data) {
		return nil, protocolError("payload_len disagrees with datagram size")
	}

	storedChecksum := binary.LittleEndian.Uint32(data[offChecksum:])
	verify := make([]byte, len(data))
	copy(verify, data)
	binary.LittleEndian.PutUint32(verify[offChecksum:], 0)
	if crc32.ChecksumIEEE(verify) != storedChecksum {
		return nil, checksumError()
	}

	p := &packet{
		typ:      packetType(data[offType]),
		flags:    binary.LittleEndian.Uint16(data[offFlags:]),
		sequence: binary.LittleEndian.Uint64(data[offSeq:]),
		ackSeq:   binary.LittleEndian.Uint64(data[offAckSeq:]),
	}
	if payloadLen > 0 {
		p.payload = make([]byte, payloadLen)
		copy(p.payload, data[offBody:offBody+payloadLen])
	}
	return p, nil
}

func protocolError(reason string) error {
	return &flux.Error{Kind: flux.KindRudpProtocolError, Message: reason}
}

// checksumError constructs the internal checksum-failure condition. It is
// never returned to application code, only recorded in metrics: the
// receiver treats a checksum-failed datagram as a silently dropped packet,
// recovered by the sender's retransmit timer.
func checksumError() error {
	return &flux.Error{Kind: flux.KindRudpChecksumFailure, Message: "checksum mismatch"}
}
