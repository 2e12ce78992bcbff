// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"sync"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

// TypedServer adds message building on top of Server. Builds run under a
// send mutex (see TypedClient). Unlike the client facade, failures are not
// flattened to false: sending to an address the server has no live peer for
// returns ErrUnknownConnection, and build or serialization failures return
// the builder's error.
type TypedServer struct {
	sendMu  sync.Mutex
	builder messages.Builder
	server  *Server
}

func NewTypedServer(tg *ioctx.ThreadGroup, builder messages.Builder, args ServerArgs) (*TypedServer, error) {
	if builder == nil {
		builder = messages.NewMessageBuilder()
	}
	if args.MinReadSize == 0 {
		args.MinReadSize = builder.HeaderSize()
	}
	server, err := NewServer(tg, args)
	if err != nil {
		return nil, err
	}
	return &TypedServer{builder: builder, server: server}, nil
}

func (ts *TypedServer) ListenPort() uint16   { return ts.server.ListenPort() }
func (ts *TypedServer) NumberOfClients() int { return ts.server.NumberOfClients() }
func (ts *TypedServer) OpenAcceptor() error  { return ts.server.OpenAcceptor() }
func (ts *TypedServer) CloseAcceptor()       { ts.server.CloseAcceptor() }
func (ts *TypedServer) Close()               { ts.server.Close() }

func (ts *TypedServer) ServerDetailsForClient(client cmn.Connection) cmn.Connection {
	return ts.server.ServerDetailsForClient(client)
}

// SendHeaderToClientAsync sends a header-only message to one peer. A null
// responseAddress means "respond to this server's socket for that peer".
func (ts *TypedServer) SendHeaderToClientAsync(client cmn.Connection, messageID int32,
	responseAddress cmn.Connection) error {
	frame, err := ts.buildFor(client, messageID, responseAddress, nil, messages.ArchiveRaw, false)
	if err != nil {
		return err
	}
	return ts.server.SendMessageToClientAsync(client, frame)
}

func (ts *TypedServer) SendHeaderToClientSync(client cmn.Connection, messageID int32,
	responseAddress cmn.Connection) (bool, error) {
	frame, err := ts.buildFor(client, messageID, responseAddress, nil, messages.ArchiveRaw, false)
	if err != nil {
		return false, err
	}
	return ts.server.SendMessageToClientSync(client, frame)
}

func (ts *TypedServer) SendBufToClientAsync(client cmn.Connection, buf []byte, messageID int32,
	responseAddress cmn.Connection) error {
	frame, err := ts.buildFor(client, messageID, responseAddress, buf, messages.ArchiveRaw, true)
	if err != nil {
		return err
	}
	return ts.server.SendMessageToClientAsync(client, frame)
}

func (ts *TypedServer) SendBufToClientSync(client cmn.Connection, buf []byte, messageID int32,
	responseAddress cmn.Connection) (bool, error) {
	frame, err := ts.buildFor(client, messageID, responseAddress, buf, messages.ArchiveRaw, true)
	if err != nil {
		return false, err
	}
	return ts.server.SendMessageToClientSync(client, frame)
}

func (ts *TypedServer) SendTypedToClientAsync(client cmn.Connection, v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) error {
	frame, err := ts.buildFor(client, messageID, responseAddress, v, archive, true)
	if err != nil {
		return err
	}
	return ts.server.SendMessageToClientAsync(client, frame)
}

func (ts *TypedServer) SendTypedToClientSync(client cmn.Connection, v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) (bool, error) {
	frame, err := ts.buildFor(client, messageID, responseAddress, v, archive, true)
	if err != nil {
		return false, err
	}
	return ts.server.SendMessageToClientSync(client, frame)
}

// SendHeaderToAll broadcasts a header-only message; the source is the
// {"0.0.0.0", listenPort} sentinel since one frame goes to every peer.
func (ts *TypedServer) SendHeaderToAll(messageID int32, responseAddress cmn.Connection) error {
	frame, err := ts.build(messageID, responseAddress, ts.broadcastSource(), nil, messages.ArchiveRaw, false)
	if err != nil {
		return err
	}
	return ts.server.SendMessageToAll(frame)
}

func (ts *TypedServer) SendTypedToAll(v any, archive messages.ArchiveType, messageID int32,
	responseAddress cmn.Connection) error {
	frame, err := ts.build(messageID, responseAddress, ts.broadcastSource(), v, archive, true)
	if err != nil {
		return err
	}
	return ts.server.SendMessageToAll(frame)
}

func (ts *TypedServer) broadcastSource() cmn.Connection {
	return cmn.Connection{Host: "0.0.0.0", Port: ts.server.ListenPort()}
}

func (ts *TypedServer) buildFor(client cmn.Connection, messageID int32, responseAddress cmn.Connection,
	body any, archive messages.ArchiveType, hasBody bool) ([]byte, error) {
	if !ts.server.Connected(client) {
		return nil, cmn.NewErrUnknownConnection(client)
	}
	return ts.build(messageID, responseAddress, ts.server.ServerDetailsForClient(client), body, archive, hasBody)
}

func (ts *TypedServer) build(messageID int32, responseAddress, source cmn.Connection,
	body any, archive messages.ArchiveType, hasBody bool) ([]byte, error) {
	ts.sendMu.Lock()
	defer ts.sendMu.Unlock()
	if !hasBody {
		return ts.builder.BuildHeaderOnly(messageID, responseAddress, source)
	}
	if archive == messages.ArchiveRaw {
		if buf, ok := body.([]byte); ok {
			return ts.builder.BuildWithBody(buf, messageID, responseAddress, source)
		}
	}
	return ts.builder.BuildTyped(body, archive, messageID, responseAddress, source)
}
