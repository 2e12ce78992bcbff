// Package messages implements the corelib wire format: fixed-layout message
// headers, frame building, and frame parsing/dispatch
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package messages

import (
	"bytes"
	"encoding/binary"

	"github.com/OneOfOne/xxhash"

	"github.com/dac1976/corelib-go/cmn"
)

// Every frame is exactly one header followed by TotalLength-HeaderSize body
// bytes. The header layout, in order and little-endian:
//
//	magic          [MagicLen]byte   resync/validation marker, NUL-padded
//	source host    [HostLen]byte    NUL-padded ASCII
//	source port    uint16
//	response host  [HostLen]byte    NUL-padded ASCII
//	response port  uint16
//	message id     int32
//	archive tag    uint16
//	total length   uint32           header plus body
//	checksum       uint32           xxhash32 of the preceding bytes
//
// Both peers must agree on the field widths. The layout is the default
// MessageBuilder's; a custom Builder/Handler pair may use its own.
const (
	MagicString = "_BEGIN_MESSAGE_"

	MagicLen = 16
	HostLen  = 32

	HeaderSize  = MagicLen + HostLen + 2 + HostLen + 2 + 4 + 2 + 4 + 4
	checksumOff = HeaderSize - 4
)

// field offsets
const (
	offMagic    = 0
	offSrcHost  = offMagic + MagicLen
	offSrcPort  = offSrcHost + HostLen
	offRespHost = offSrcPort + 2
	offRespPort = offRespHost + HostLen
	offMsgID    = offRespPort + 2
	offArchive  = offMsgID + 4
	offTotalLen = offArchive + 2
)

// MessageHeader is the fixed-size record prefixing every frame.
type MessageHeader struct {
	Source      cmn.Connection
	Response    cmn.Connection
	MessageID   int32
	Archive     ArchiveType
	TotalLength uint32
}

func (h *MessageHeader) BodyLength() int { return int(h.TotalLength) - HeaderSize }

// Marshal produces the header's exact wire representation, computing the
// checksum over the preceding fields.
func (h *MessageHeader) Marshal() ([]byte, error) {
	if len(h.Source.Host) > HostLen || len(h.Response.Host) > HostLen {
		return nil, cmn.NewErrFraming("host name exceeds %d bytes", HostLen)
	}
	if h.TotalLength < HeaderSize {
		return nil, cmn.NewErrFraming("total length %d < header size %d", h.TotalLength, HeaderSize)
	}
	b := make([]byte, HeaderSize)
	copy(b[offMagic:], MagicString)
	copy(b[offSrcHost:], h.Source.Host)
	binary.LittleEndian.PutUint16(b[offSrcPort:], h.Source.Port)
	copy(b[offRespHost:], h.Response.Host)
	binary.LittleEndian.PutUint16(b[offRespPort:], h.Response.Port)
	binary.LittleEndian.PutUint32(b[offMsgID:], uint32(h.MessageID))
	binary.LittleEndian.PutUint16(b[offArchive:], uint16(h.Archive))
	binary.LittleEndian.PutUint32(b[offTotalLen:], h.TotalLength)
	binary.LittleEndian.PutUint32(b[checksumOff:], xxhash.Checksum32(b[:checksumOff]))
	return b, nil
}

// UnmarshalHeader parses and validates the first HeaderSize bytes of a frame.
// Magic, checksum, and length plausibility are all checked; a violation means
// the stream is desynchronized and the connection must be closed.
func UnmarshalHeader(b []byte) (h MessageHeader, err error) {
	if len(b) < HeaderSize {
		return h, cmn.NewErrFraming("short header: %d < %d", len(b), HeaderSize)
	}
	if !bytes.Equal(b[offMagic:offMagic+len(MagicString)], []byte(MagicString)) {
		return h, cmn.NewErrFraming("bad magic")
	}
	if sum := xxhash.Checksum32(b[:checksumOff]); sum != binary.LittleEndian.Uint32(b[checksumOff:]) {
		return h, cmn.NewErrFraming("bad checksum")
	}
	h.Source = cmn.Connection{
		Host: unpad(b[offSrcHost : offSrcHost+HostLen]),
		Port: binary.LittleEndian.Uint16(b[offSrcPort:]),
	}
	h.Response = cmn.Connection{
		Host: unpad(b[offRespHost : offRespHost+HostLen]),
		Port: binary.LittleEndian.Uint16(b[offRespPort:]),
	}
	h.MessageID = int32(binary.LittleEndian.Uint32(b[offMsgID:]))
	h.Archive = ArchiveType(binary.LittleEndian.Uint16(b[offArchive:]))
	h.TotalLength = binary.LittleEndian.Uint32(b[offTotalLen:])
	if h.TotalLength < HeaderSize {
		return h, cmn.NewErrFraming("implausible total length %d", h.TotalLength)
	}
	return h, nil
}

func unpad(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
