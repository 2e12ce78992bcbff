// Package messages implements the corelib wire format: fixed-layout message
// headers, frame building, and frame parsing/dispatch
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package messages

import (
	"github.com/pkg/errors"

	"github.com/dac1976/corelib-go/cmn"
)

// Builder produces fully framed byte buffers. The default MessageBuilder
// implements the layout documented in header.go; a custom Builder may use its
// own header shape so long as the peer runs a compatible Handler.
type Builder interface {
	// HeaderSize is the minimum amount a connection must read before it can
	// ask how many bytes remain.
	HeaderSize() int
	// BuildHeaderOnly frames a bodyless message (TotalLength == HeaderSize).
	BuildHeaderOnly(messageID int32, response, source cmn.Connection) ([]byte, error)
	// BuildWithBody frames caller-supplied opaque bytes (ArchiveRaw).
	BuildWithBody(body []byte, messageID int32, response, source cmn.Connection) ([]byte, error)
	// BuildTyped serializes v via the codec registered for archive and frames
	// the result, recording the archive tag in the header.
	BuildTyped(v any, archive ArchiveType, messageID int32, response, source cmn.Connection) ([]byte, error)
}

// MessageBuilder is the default Builder.
type MessageBuilder struct{}

// interface guard
var _ Builder = (*MessageBuilder)(nil)

func NewMessageBuilder() *MessageBuilder { return &MessageBuilder{} }

func (*MessageBuilder) HeaderSize() int { return HeaderSize }

func (b *MessageBuilder) BuildHeaderOnly(messageID int32, response, source cmn.Connection) ([]byte, error) {
	return b.build(nil, ArchiveRaw, messageID, response, source)
}

func (b *MessageBuilder) BuildWithBody(body []byte, messageID int32, response, source cmn.Connection) ([]byte, error) {
	return b.build(body, ArchiveRaw, messageID, response, source)
}

func (b *MessageBuilder) BuildTyped(v any, archive ArchiveType, messageID int32,
	response, source cmn.Connection) ([]byte, error) {
	codec, err := CodecFor(archive)
	if err != nil {
		return nil, err
	}
	body, err := codec.Encode(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s body", archive)
	}
	return b.build(body, archive, messageID, response, source)
}

func (*MessageBuilder) build(body []byte, archive ArchiveType, messageID int32,
	response, source cmn.Connection) ([]byte, error) {
	hdr := MessageHeader{
		Source:      source,
		Response:    response,
		MessageID:   messageID,
		Archive:     archive,
		TotalLength: uint32(HeaderSize + len(body)),
	}
	hb, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return hb, nil
	}
	frame := make([]byte, 0, len(hb)+len(body))
	frame = append(frame, hb...)
	return append(frame, body...), nil
}
