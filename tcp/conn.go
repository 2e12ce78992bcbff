// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"io"
	"net"
	"sync"
	ratomic "sync/atomic"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/cmn/cos"
	"github.com/dac1976/corelib-go/cmn/debug"
	"github.com/dac1976/corelib-go/cmn/nlog"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

// connection lifecycle: Idle -> Connecting -> Connected -> Closing -> Closed.
// Errors transition straight to Closed and mark the connection unusable;
// Connected is the only state permitting sends and receives.
type connState int32

const (
	stIdle connState = iota
	stConnecting
	stConnected
	stClosing
	stClosed
)

func (s connState) String() string {
	switch s {
	case stIdle:
		return "idle"
	case stConnecting:
		return "connecting"
	case stConnected:
		return "connected"
	case stClosing:
		return "closing"
	}
	return "closed"
}

type (
	// sendEntry - one prebuilt frame on the send queue, with an optional
	// completion callback.
	sendEntry struct {
		frame []byte
		cmpl  func(error)
	}

	// ConnArgs parameterizes a single live connection.
	ConnArgs struct {
		MinReadSize int                     // header size: amount to read before CheckBytes applies
		CheckBytes  messages.CheckBytesLeft // bytes-remaining query
		Dispatch    messages.Dispatcher     // per-frame user callback
		SendOption  cmn.SendOption
		MaxUnsent   int          // send queue bound; 0 means cmn.MaxUnsentAsyncMsgCount
		OnClose     func(*Conn)  // owner teardown hook (peer-map removal etc.)
		Handler     FrameHandler // optional override of the default Handler pair
	}

	// FrameHandler abstracts the receive-side contract so a custom
	// Builder/Handler pair can replace the default layout.
	FrameHandler interface {
		BytesLeftToRead(partial []byte) (int, error)
		OnMessageReceived(frame []byte) error
	}

	// Conn is one live socket: a read loop honoring the bytes-remaining
	// protocol, a bounded send queue drained by a single write pump, and a
	// synchronous send path serialized against the pump.
	//
	// The read and write goroutines hold their own references to the Conn, so
	// it survives until all in-flight operations observe the close - teardown
	// cannot race a pending read.
	Conn struct {
		lid     string
		sock    net.Conn
		tg      *ioctx.ThreadGroup
		handler FrameHandler
		workCh  chan sendEntry
		stopCh  cos.StopCh
		writeMu sync.Mutex
		state   ratomic.Int32
		once    sync.Once
		onClose func(*Conn)
		stats   Stats
		remote  cmn.Connection
		local   cmn.Connection
	}
)

func newConn(tg *ioctx.ThreadGroup, sock net.Conn, args *ConnArgs) *Conn {
	maxUnsent := args.MaxUnsent
	if maxUnsent <= 0 {
		maxUnsent = cmn.MaxUnsentAsyncMsgCount
	}
	handler := args.Handler
	if handler == nil {
		handler = newDefaultHandler(args)
	}
	c := &Conn{
		lid:     cos.GenTie(),
		sock:    sock,
		tg:      tg,
		handler: handler,
		workCh:  make(chan sendEntry, maxUnsent),
		onClose: args.OnClose,
	}
	c.stopCh.Init()
	if tc, ok := sock.(*net.TCPConn); ok {
		// Nagle applied before the first write
		_ = tc.SetNoDelay(args.SendOption == cmn.NagleOff)
	}
	if remote, err := cmn.ParseConnection(sock.RemoteAddr().String()); err == nil {
		c.remote = remote
	}
	if local, err := cmn.ParseConnection(sock.LocalAddr().String()); err == nil {
		c.local = local
	}
	c.state.Store(int32(stConnected))
	c.tg.Go("conn-read-"+c.lid, func() { c.readLoop(args.MinReadSize) })
	c.tg.Go("conn-write-"+c.lid, c.writePump)
	return c
}

type defaultHandler struct {
	h *messages.Handler
}

func newDefaultHandler(args *ConnArgs) FrameHandler {
	if args.CheckBytes != nil {
		return funcHandler{check: args.CheckBytes, h: messages.NewHandler(args.Dispatch)}
	}
	return defaultHandler{h: messages.NewHandler(args.Dispatch)}
}

func (d defaultHandler) BytesLeftToRead(partial []byte) (int, error) {
	return d.h.BytesLeftToRead(partial)
}
func (d defaultHandler) OnMessageReceived(frame []byte) error { return d.h.OnMessageReceived(frame) }

type funcHandler struct {
	check messages.CheckBytesLeft
	h     *messages.Handler
}

func (f funcHandler) BytesLeftToRead(partial []byte) (int, error) { return f.check(partial) }
func (f funcHandler) OnMessageReceived(frame []byte) error        { return f.h.OnMessageReceived(frame) }

func (c *Conn) String() string { return "conn[" + c.lid + "=>" + c.remote.String() + "]" }

func (c *Conn) State() connState        { return connState(c.state.Load()) }
func (c *Conn) Connected() bool         { return c.State() == stConnected }
func (c *Conn) NumUnsent() int          { return len(c.workCh) }
func (c *Conn) MaxUnsent() int          { return cap(c.workCh) }
func (c *Conn) GetStats() StatsSnapshot { return c.stats.snapshot() }

// RemoteConnection is the peer's address as observed by this socket.
func (c *Conn) RemoteConnection() cmn.Connection { return c.remote }

// LocalConnection is this socket's own endpoint.
func (c *Conn) LocalConnection() cmn.Connection { return c.local }

//
// read side
//

// The read loop requests MinReadSize bytes, asks the handler how many remain,
// reads exactly that many more, hands the complete frame over, and re-enters
// the read state. If a read yields bytes of the next frame the handler
// reports zero left and the loop starts over cleanly - reads are issued as
// "read exactly N", so over-reads cannot occur. Any I/O failure or framing
// violation closes the connection.
func (c *Conn) readLoop(minRead int) {
	debug.Assert(minRead > 0)
	hdr := make([]byte, minRead)
	for {
		if _, err := io.ReadFull(c.sock, hdr); err != nil {
			c.closeOnErr(err)
			return
		}
		left, err := c.handler.BytesLeftToRead(hdr)
		if err != nil {
			mFramingErrors.Inc()
			nlog.Warningf("%s: %v - closing", c, err)
			c.closeOnErr(err)
			return
		}
		frame := hdr
		if left > 0 {
			frame = make([]byte, minRead+left)
			copy(frame, hdr)
			if _, err := io.ReadFull(c.sock, frame[minRead:]); err != nil {
				c.closeOnErr(err)
				return
			}
		}
		c.stats.rx(len(frame))
		if err := c.handler.OnMessageReceived(frame); err != nil {
			mFramingErrors.Inc()
			nlog.Warningf("%s: %v - closing", c, err)
			c.closeOnErr(err)
			return
		}
	}
}

//
// write side
//

// SendAsync enqueues a prebuilt frame; it never blocks. A full queue refuses
// the frame (ErrQueueFull) leaving prior entries unaffected. cmpl, when
// non-nil, runs once the frame is written or the connection dies.
func (c *Conn) SendAsync(frame []byte, cmpl func(error)) error {
	if !c.Connected() {
		return cmn.NewErrNotConnected(c.remote)
	}
	select {
	case c.workCh <- sendEntry{frame: frame, cmpl: cmpl}:
		return nil
	default:
		mQueueDrops.Inc()
		return cmn.NewErrQueueFull(cap(c.workCh))
	}
}

// SendSync writes the whole frame inline under the write lock, serialized
// against the pump. Returns (true, nil) on delivery to the socket,
// (false, err) on I/O failure (which also closes the connection).
func (c *Conn) SendSync(frame []byte) (bool, error) {
	if !c.Connected() {
		return false, cmn.NewErrNotConnected(c.remote)
	}
	if err := c.writeFrame(frame); err != nil {
		c.closeOnErr(err)
		return false, err
	}
	return true, nil
}

// one write in flight per connection at a time
func (c *Conn) writePump() {
	for {
		select {
		case e := <-c.workCh:
			err := c.writeFrame(e.frame)
			if e.cmpl != nil {
				e.cmpl(err)
			}
			if err != nil {
				c.closeOnErr(err)
				return
			}
		case <-c.stopCh.Listen():
			return
		}
	}
}

func (c *Conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	_, err := c.sock.Write(frame)
	c.writeMu.Unlock()
	if err == nil {
		c.stats.tx(len(frame))
	}
	return err
}

//
// lifecycle
//

// Close cancels all pending operations; in-flight completions still run and
// observe the closed state. Destruction implies close.
func (c *Conn) Close() { c.close(nil) }

func (c *Conn) closeOnErr(err error) {
	if c.State() == stClosing || c.State() == stClosed {
		return // local close in progress; not an error
	}
	c.close(err)
}

func (c *Conn) close(err error) {
	c.once.Do(func() {
		c.state.Store(int32(stClosing))
		if err != nil {
			nlog.Infof("%s: closed, err: %v", c, err)
		}
		c.stopCh.Close()
		c.sock.Close()
		c.state.Store(int32(stClosed))
		c.abortPending()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// drain the queue; every entry gets exactly one completion
func (c *Conn) abortPending() {
	for {
		select {
		case e := <-c.workCh:
			if e.cmpl != nil {
				e.cmpl(cmn.ErrClosed)
			}
		default:
			return
		}
	}
}
