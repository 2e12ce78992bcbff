// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

type (
	// ClientArgs parameterizes a Client.
	ClientArgs struct {
		Server      cmn.Connection // fixed target
		MinReadSize int
		CheckBytes  messages.CheckBytesLeft
		Dispatch    messages.Dispatcher
		SendOption  cmn.SendOption
		MaxUnsent   int
		DialTimeout time.Duration
	}

	// Client wraps exactly one outbound connection to a fixed server address,
	// lazily (re)establishing it on demand: a send after a close or a drop
	// dials again. There is no backoff policy - reconnection happens at most
	// once per call.
	Client struct {
		tg    *ioctx.ThreadGroup
		ownTG bool
		args  ClientArgs
		mu    sync.Mutex
		conn  *Conn
	}
)

const dfltDialTimeout = 10 * time.Second

// NewClient does not connect; the connection is established by the first
// send (or explicitly via CheckAndCreateConnection). Pass a shared
// ThreadGroup or nil for a standalone one.
func NewClient(tg *ioctx.ThreadGroup, args ClientArgs) *Client {
	ownTG := tg == nil
	if ownTG {
		tg = ioctx.NewThreadGroup()
	}
	if args.MinReadSize == 0 {
		args.MinReadSize = messages.HeaderSize
	}
	if args.DialTimeout == 0 {
		args.DialTimeout = dfltDialTimeout
	}
	return &Client{tg: tg, ownTG: ownTG, args: args}
}

// ServerConnection is the fixed target server's address.
func (cl *Client) ServerConnection() cmn.Connection { return cl.args.Server }

func (cl *Client) Connected() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conn != nil && cl.conn.Connected()
}

// NumberOfUnsentAsyncMessages is the current send-queue depth.
func (cl *Client) NumberOfUnsentAsyncMessages() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn == nil {
		return 0
	}
	return cl.conn.NumUnsent()
}

// GetClientDetailsForServer resolves this client's local endpoint,
// establishing the connection if necessary.
func (cl *Client) GetClientDetailsForServer() (cmn.Connection, error) {
	conn, err := cl.checkAndCreate()
	if err != nil {
		return cmn.NullConnection, err
	}
	return conn.LocalConnection(), nil
}

// CheckAndCreateConnection connects if not already connected.
func (cl *Client) CheckAndCreateConnection() error {
	_, err := cl.checkAndCreate()
	return err
}

func (cl *Client) checkAndCreate() (*Conn, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn != nil && cl.conn.Connected() {
		return cl.conn, nil
	}
	sock, err := net.DialTimeout("tcp", cl.args.Server.String(), cl.args.DialTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", cl.args.Server)
	}
	cl.conn = newConn(cl.tg, sock, &ConnArgs{
		MinReadSize: cl.args.MinReadSize,
		CheckBytes:  cl.args.CheckBytes,
		Dispatch:    cl.args.Dispatch,
		SendOption:  cl.args.SendOption,
		MaxUnsent:   cl.args.MaxUnsent,
	})
	return cl.conn, nil
}

// SendMessageToServerAsync enqueues a prebuilt frame, reconnecting on demand.
// Success means queue acceptance, not delivery.
func (cl *Client) SendMessageToServerAsync(frame []byte) error {
	conn, err := cl.checkAndCreate()
	if err != nil {
		return err
	}
	return conn.SendAsync(frame, nil)
}

// SendMessageToServerSync writes the frame inline, reconnecting on demand.
func (cl *Client) SendMessageToServerSync(frame []byte) (bool, error) {
	conn, err := cl.checkAndCreate()
	if err != nil {
		return false, err
	}
	return conn.SendSync(frame)
}

// CloseConnection transitions to Closed; a subsequent send reconnects.
func (cl *Client) CloseConnection() {
	cl.mu.Lock()
	conn := cl.conn
	cl.conn = nil
	cl.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close tears the client down; standalone runtimes are stopped and drained.
func (cl *Client) Close() {
	cl.CloseConnection()
	if cl.ownTG {
		cl.tg.Stop()
		cl.tg.Wait()
	}
}
