// Package messages implements the corelib wire format: fixed-layout message
// headers, frame building, and frame parsing/dispatch
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package messages

import (
	"github.com/dac1976/corelib-go/cmn/nlog"
)

type (
	// ReceivedMessage is the (header, body) pair handed to a Dispatcher, once
	// per complete frame.
	ReceivedMessage struct {
		Header MessageHeader
		Body   []byte
	}

	// Dispatcher is the user callback invoked for every received frame. For a
	// given connection it is never re-entered; dispatches for distinct
	// connections may run concurrently.
	Dispatcher func(msg *ReceivedMessage)

	// CheckBytesLeft reports, given at least HeaderSize bytes read so far, how
	// many bytes remain until the frame is complete. A framing error closes
	// the connection.
	CheckBytesLeft func(partial []byte) (int, error)
)

// Handler validates incoming frames against the default layout and dispatches
// them. Its two methods are the read-side contract a connection drives:
// BytesLeftToRead while assembling a frame, OnMessageReceived once complete.
type Handler struct {
	dispatch Dispatcher
}

func NewHandler(dispatch Dispatcher) *Handler { return &Handler{dispatch: dispatch} }

func (*Handler) HeaderSize() int { return HeaderSize }

// BytesLeftToRead parses and validates the header out of the bytes read so
// far and returns total length minus bytes already read. Zero means the frame
// (and possibly the start of the next - the caller re-enters the read state)
// is complete.
func (*Handler) BytesLeftToRead(partial []byte) (int, error) {
	hdr, err := UnmarshalHeader(partial)
	if err != nil {
		return 0, err
	}
	left := int(hdr.TotalLength) - len(partial)
	if left < 0 {
		left = 0
	}
	return left, nil
}

// OnMessageReceived splits a complete frame into header and body and invokes
// the dispatcher. A panic escaping the dispatcher is recovered and logged:
// receive errors must not take down the I/O runtime, and the connection stays
// alive unless the frame itself was invalid.
func (h *Handler) OnMessageReceived(frame []byte) error {
	hdr, err := UnmarshalHeader(frame)
	if err != nil {
		return err
	}
	msg := &ReceivedMessage{Header: hdr, Body: frame[HeaderSize:hdr.TotalLength]}
	h.safeDispatch(msg)
	return nil
}

func (h *Handler) safeDispatch(msg *ReceivedMessage) {
	defer func() {
		if r := recover(); r != nil {
			nlog.Errorf("dispatcher panic on message %d: %v", msg.Header.MessageID, r)
		}
	}()
	h.dispatch(msg)
}
