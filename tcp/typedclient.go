// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"sync"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/cmn/nlog"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

// TypedClient adds message building on top of Client: header-only, raw
// buffer, and typed-payload sends, each available synchronously and
// asynchronously. Builds run under a send mutex so that multiple goroutines
// sharing one facade serialize deterministically (and because a Builder need
// not be thread-safe). Build and serialization failures never escape - every
// method reports plain boolean success; async success means queue acceptance,
// not delivery.
type TypedClient struct {
	sendMu  sync.Mutex
	builder messages.Builder
	client  *Client
}

// NewTypedClient wires a Builder (nil for the default) to a lazily-connecting
// Client. dispatch receives every frame the server sends back.
func NewTypedClient(tg *ioctx.ThreadGroup, builder messages.Builder, args ClientArgs) *TypedClient {
	if builder == nil {
		builder = messages.NewMessageBuilder()
	}
	if args.MinReadSize == 0 {
		args.MinReadSize = builder.HeaderSize()
	}
	return &TypedClient{builder: builder, client: NewClient(tg, args)}
}

func (tc *TypedClient) ServerConnection() cmn.Connection { return tc.client.ServerConnection() }
func (tc *TypedClient) Connected() bool                  { return tc.client.Connected() }
func (tc *TypedClient) NumberOfUnsentAsyncMessages() int {
	return tc.client.NumberOfUnsentAsyncMessages()
}

// GetClientDetailsForServer triggers a connect attempt if not yet
// established; failure to connect is an error.
func (tc *TypedClient) GetClientDetailsForServer() (cmn.Connection, error) {
	return tc.client.GetClientDetailsForServer()
}

func (tc *TypedClient) CloseConnection() { tc.client.CloseConnection() }
func (tc *TypedClient) Close()           { tc.client.Close() }

// SendHeaderToServerAsync sends a header-only message. A null
// responseAddress means "respond to this client's socket".
func (tc *TypedClient) SendHeaderToServerAsync(messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, nil, messages.ArchiveRaw, false, false)
}

func (tc *TypedClient) SendHeaderToServerSync(messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, nil, messages.ArchiveRaw, false, true)
}

// SendBufToServerAsync sends caller-supplied opaque bytes behind the header.
func (tc *TypedClient) SendBufToServerAsync(buf []byte, messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, buf, messages.ArchiveRaw, true, false)
}

func (tc *TypedClient) SendBufToServerSync(buf []byte, messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, buf, messages.ArchiveRaw, true, true)
}

// SendTypedToServerAsync serializes v via the archive's codec and sends it
// behind the header, with the archive tag recorded in-band.
func (tc *TypedClient) SendTypedToServerAsync(v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, v, archive, true, false)
}

func (tc *TypedClient) SendTypedToServerSync(v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) bool {
	return tc.send(messageID, responseAddress, v, archive, true, true)
}

// SendFrameToServerAsync passes a prebuilt frame straight through.
func (tc *TypedClient) SendFrameToServerAsync(frame []byte) bool {
	if err := tc.client.SendMessageToServerAsync(frame); err != nil {
		nlog.Warningln("send frame:", err)
		return false
	}
	return true
}

func (tc *TypedClient) SendFrameToServerSync(frame []byte) bool {
	ok, err := tc.client.SendMessageToServerSync(frame)
	if err != nil {
		nlog.Warningln("send frame:", err)
	}
	return ok && err == nil
}

func (tc *TypedClient) send(messageID int32, responseAddress cmn.Connection,
	body any, archive messages.ArchiveType, hasBody, sync bool) bool {
	tc.sendMu.Lock()
	defer tc.sendMu.Unlock()

	source, err := tc.client.GetClientDetailsForServer()
	if err != nil {
		nlog.Warningln("send:", err)
		return false
	}
	var frame []byte
	switch {
	case !hasBody:
		frame, err = tc.builder.BuildHeaderOnly(messageID, responseAddress, source)
	case archive == messages.ArchiveRaw:
		buf, ok := body.([]byte)
		if !ok {
			nlog.Warningf("send: raw body must be []byte, got %T", body)
			return false
		}
		frame, err = tc.builder.BuildWithBody(buf, messageID, responseAddress, source)
	default:
		frame, err = tc.builder.BuildTyped(body, archive, messageID, responseAddress, source)
	}
	if err != nil {
		nlog.Warningln("build message:", err)
		return false
	}
	if sync {
		ok, err := tc.client.SendMessageToServerSync(frame)
		if err != nil {
			nlog.Warningln("send sync:", err)
			return false
		}
		return ok
	}
	if err := tc.client.SendMessageToServerAsync(frame); err != nil {
		nlog.Warningln("send async:", err)
		return false
	}
	return true
}
