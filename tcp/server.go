// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/cmn/nlog"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

type (
	// ServerArgs parameterizes a Server.
	ServerArgs struct {
		ListenPort  uint16
		MinReadSize int
		CheckBytes  messages.CheckBytesLeft
		Dispatch    messages.Dispatcher
		SendOption  cmn.SendOption
		MaxUnsent   int
	}

	// peer state: the accepted connection plus the local endpoint it dialed
	// into ("the server's details for this client")
	peer struct {
		conn  *Conn
		local cmn.Connection
	}

	// Server accepts inbound connections and owns a map of live peers keyed
	// by each peer's observed remote address. The server holds the only
	// strong back-reference; peers never point back at the server's map
	// except through the close hook (no cycle).
	Server struct {
		tg       *ioctx.ThreadGroup
		ownTG    bool
		args     ServerArgs
		mu       sync.Mutex
		peers    map[cmn.Connection]*peer
		listener net.Listener
		closed   bool
	}
)

// NewServer starts listening immediately. Pass a shared ThreadGroup to run
// all servers and clients on one I/O runtime (recommended); pass nil for a
// standalone runtime owned by this server.
func NewServer(tg *ioctx.ThreadGroup, args ServerArgs) (*Server, error) {
	ownTG := tg == nil
	if ownTG {
		tg = ioctx.NewThreadGroup()
	}
	if args.MinReadSize == 0 {
		args.MinReadSize = messages.HeaderSize
	}
	s := &Server{
		tg:    tg,
		ownTG: ownTG,
		args:  args,
		peers: make(map[cmn.Connection]*peer, 8),
	}
	if err := s.OpenAcceptor(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenAcceptor (re)binds the listen port and resumes accepting. Existing peer
// connections are unaffected.
func (s *Server) OpenAcceptor() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(int(s.args.ListenPort))))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", s.args.ListenPort)
	}
	if s.args.ListenPort == 0 {
		// ephemeral port: record what we got
		if bound, err := cmn.ParseConnection(ln.Addr().String()); err == nil {
			s.args.ListenPort = bound.Port
		}
	}
	s.listener = ln
	s.closed = false
	s.tg.Go("server-accept-"+strconv.Itoa(int(s.args.ListenPort)), func() { s.acceptLoop(ln) })
	return nil
}

// CloseAcceptor stops accepting new connections without tearing down
// existing ones.
func (s *Server) CloseAcceptor() {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		sock, err := ln.Accept()
		if err != nil {
			// acceptor closed or fatal; existing peers keep running
			return
		}
		s.addPeer(sock)
	}
}

func (s *Server) addPeer(sock net.Conn) {
	local, _ := cmn.ParseConnection(sock.LocalAddr().String())
	conn := newConn(s.tg, sock, &ConnArgs{
		MinReadSize: s.args.MinReadSize,
		CheckBytes:  s.args.CheckBytes,
		Dispatch:    s.args.Dispatch,
		SendOption:  s.args.SendOption,
		MaxUnsent:   s.args.MaxUnsent,
		OnClose:     s.removePeer,
	})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.peers[conn.RemoteConnection()] = &peer{conn: conn, local: local}
	s.mu.Unlock()
	nlog.Infof("%s: accepted %s", s, conn)
}

// destroyed when the socket closes (peer disconnect, local close, or error)
func (s *Server) removePeer(c *Conn) {
	s.mu.Lock()
	if p, ok := s.peers[c.RemoteConnection()]; ok && p.conn == c {
		delete(s.peers, c.RemoteConnection())
	}
	s.mu.Unlock()
}

func (s *Server) String() string { return "server[:" + strconv.Itoa(int(s.args.ListenPort)) + "]" }

func (s *Server) ListenPort() uint16 { return s.args.ListenPort }

func (s *Server) NumberOfClients() int {
	s.mu.Lock()
	n := len(s.peers)
	s.mu.Unlock()
	return n
}

// Connected reports whether the named peer has a live connection.
func (s *Server) Connected(client cmn.Connection) bool {
	s.mu.Lock()
	_, ok := s.peers[client]
	s.mu.Unlock()
	return ok
}

// ServerDetailsForClient is the local endpoint the named peer connects to;
// unknown peers get the {"0.0.0.0", listenPort} sentinel.
func (s *Server) ServerDetailsForClient(client cmn.Connection) cmn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.peers[client]; ok {
		return p.local
	}
	return cmn.Connection{Host: "0.0.0.0", Port: s.args.ListenPort}
}

func (s *Server) lookup(client cmn.Connection) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[client]
	if !ok {
		return nil, cmn.NewErrUnknownConnection(client)
	}
	return p.conn, nil
}

// SendMessageToClientAsync enqueues a prebuilt frame for one peer; unknown
// address is a typed error.
func (s *Server) SendMessageToClientAsync(client cmn.Connection, frame []byte) error {
	conn, err := s.lookup(client)
	if err != nil {
		return err
	}
	return conn.SendAsync(frame, nil)
}

func (s *Server) SendMessageToClientSync(client cmn.Connection, frame []byte) (bool, error) {
	conn, err := s.lookup(client)
	if err != nil {
		return false, err
	}
	return conn.SendSync(frame)
}

// SendMessageToAll enqueues one copy per peer. Per-peer failure is isolated;
// the aggregate result is "all enqueued".
func (s *Server) SendMessageToAll(frame []byte) error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.peers))
	for _, p := range s.peers {
		conns = append(conns, p.conn)
	}
	s.mu.Unlock()
	var firstErr error
	for _, conn := range conns {
		if err := conn.SendAsync(frame, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close shuts the acceptor and every peer connection; waits for a standalone
// runtime to drain.
func (s *Server) Close() {
	s.CloseAcceptor()
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.peers))
	for _, p := range s.peers {
		conns = append(conns, p.conn)
	}
	s.mu.Unlock()
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *Conn) {
			c.Close()
			wg.Done()
		}(conn)
	}
	wg.Wait()
	if s.ownTG {
		s.tg.Stop()
		s.tg.Wait()
	}
}
