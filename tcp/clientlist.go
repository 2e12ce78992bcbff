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

// ClientList maintains exactly one TypedClient per destination address for a
// process that talks to many servers. Clients are created on first send. A
// single list mutex guards creation, lookup, close, and send dispatch - send
// enqueuing is cheap, so fine-grained locking buys nothing here.
//
// With a shared ThreadGroup every pooled client runs on it; with none, each
// created client owns a standalone runtime.
type ClientList struct {
	mu         sync.Mutex
	tg         *ioctx.ThreadGroup
	builder    messages.Builder
	dispatch   messages.Dispatcher
	sendOption cmn.SendOption
	maxUnsent  int
	clients    map[cmn.Connection]*TypedClient
}

// NewClientList: tg may be nil (each client standalone); builder may be nil
// (default layout); dispatch receives every frame from every pooled client.
func NewClientList(tg *ioctx.ThreadGroup, builder messages.Builder, dispatch messages.Dispatcher,
	sendOption cmn.SendOption, maxUnsent int) *ClientList {
	return &ClientList{
		tg:         tg,
		builder:    builder,
		dispatch:   dispatch,
		sendOption: sendOption,
		maxUnsent:  maxUnsent,
		clients:    make(map[cmn.Connection]*TypedClient, 4),
	}
}

// one client per destination at any time; must be called under cl.mu
func (cl *ClientList) getOrCreate(server cmn.Connection) *TypedClient {
	client, ok := cl.clients[server]
	if !ok {
		client = NewTypedClient(cl.tg, cl.builder, ClientArgs{
			Server:     server,
			Dispatch:   cl.dispatch,
			SendOption: cl.sendOption,
			MaxUnsent:  cl.maxUnsent,
		})
		cl.clients[server] = client
	}
	return client
}

func (cl *ClientList) NumberOfClients() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.clients)
}

// Connected reports the state of the client for the given server; false if
// no such client exists yet.
func (cl *ClientList) Connected(server cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if client, ok := cl.clients[server]; ok {
		return client.Connected()
	}
	return false
}

// ClientDetailsForServer is the pooled client's local endpoint, connecting
// on demand (and creating the client if need be).
func (cl *ClientList) ClientDetailsForServer(server cmn.Connection) (cmn.Connection, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).GetClientDetailsForServer()
}

// ServerConnection finds the server a pooled client (identified by its local
// endpoint) talks to; null if unknown.
func (cl *ClientList) ServerConnection(clientConn cmn.Connection) cmn.Connection {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for server, client := range cl.clients {
		if details, err := client.GetClientDetailsForServer(); err == nil && details == clientConn {
			return server
		}
	}
	return cmn.NullConnection
}

func (cl *ClientList) SendHeaderToServerAsync(server cmn.Connection, messageID int32,
	responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendHeaderToServerAsync(messageID, responseAddress)
}

func (cl *ClientList) SendHeaderToServerSync(server cmn.Connection, messageID int32,
	responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendHeaderToServerSync(messageID, responseAddress)
}

func (cl *ClientList) SendBufToServerAsync(server cmn.Connection, buf []byte, messageID int32,
	responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendBufToServerAsync(buf, messageID, responseAddress)
}

func (cl *ClientList) SendBufToServerSync(server cmn.Connection, buf []byte, messageID int32,
	responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendBufToServerSync(buf, messageID, responseAddress)
}

func (cl *ClientList) SendTypedToServerAsync(server cmn.Connection, v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendTypedToServerAsync(v, archive, messageID, responseAddress)
}

func (cl *ClientList) SendTypedToServerSync(server cmn.Connection, v any, archive messages.ArchiveType,
	messageID int32, responseAddress cmn.Connection) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.getOrCreate(server).SendTypedToServerSync(v, archive, messageID, responseAddress)
}

// CloseConnection closes the client for one server; the client object stays
// pooled and reconnects on the next send.
func (cl *ClientList) CloseConnection(server cmn.Connection) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if client, ok := cl.clients[server]; ok {
		client.CloseConnection()
	}
}

// CloseConnections tears down every pooled client.
func (cl *ClientList) CloseConnections() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for _, client := range cl.clients {
		client.Close()
	}
	cl.clients = make(map[cmn.Connection]*TypedClient, 4)
}

// Close is teardown: closes all clients.
func (cl *ClientList) Close() { cl.CloseConnections() }
