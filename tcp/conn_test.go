// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
)

// fakeAddr/blockingConn: a net.Conn whose writes park forever, so nothing on
// the send queue ever completes.
type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:9" }

type blockingConn struct {
	block chan struct{}
}

func newBlockingConn() *blockingConn { return &blockingConn{block: make(chan struct{})} }

func (b *blockingConn) Read(_ []byte) (int, error) {
	<-b.block
	return 0, net.ErrClosed
}

func (b *blockingConn) Write(p []byte) (int, error) {
	<-b.block
	return 0, net.ErrClosed
}

func (b *blockingConn) Close() error {
	select {
	case <-b.block:
	default:
		close(b.block)
	}
	return nil
}

func (*blockingConn) LocalAddr() net.Addr              { return fakeAddr{} }
func (*blockingConn) RemoteAddr() net.Addr             { return fakeAddr{} }
func (*blockingConn) SetDeadline(time.Time) error      { return nil }
func (*blockingConn) SetReadDeadline(time.Time) error  { return nil }
func (*blockingConn) SetWriteDeadline(time.Time) error { return nil }

func TestSendQueueBound(t *testing.T) {
	const maxUnsent = 4

	tg := ioctx.NewThreadGroup()
	defer func() { tg.Stop(); tg.Wait() }()

	sock := newBlockingConn()
	conn := newConn(tg, sock, &ConnArgs{
		MinReadSize: messages.HeaderSize,
		Dispatch:    func(*messages.ReceivedMessage) {},
		MaxUnsent:   maxUnsent,
	})
	defer conn.Close()

	frame, err := messages.NewMessageBuilder().BuildHeaderOnly(1, cmn.NullConnection, cmn.NullConnection)
	require.NoError(t, err)

	// let the pump pick up one frame and park in the blocked write
	require.NoError(t, conn.SendAsync(frame, nil))
	require.Eventually(t, func() bool { return conn.NumUnsent() == 0 },
		time.Second, time.Millisecond)

	// the queue proper now takes exactly maxUnsent more
	for i := 0; i < maxUnsent; i++ {
		require.NoError(t, conn.SendAsync(frame, nil))
	}
	err = conn.SendAsync(frame, nil)
	require.True(t, cmn.IsErrQueueFull(err))
	// the refused frame did not disturb the queued ones
	require.Equal(t, maxUnsent, conn.NumUnsent())
}

func TestAbortPendingCompletions(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	defer func() { tg.Stop(); tg.Wait() }()

	sock := newBlockingConn()
	conn := newConn(tg, sock, &ConnArgs{
		MinReadSize: messages.HeaderSize,
		Dispatch:    func(*messages.ReceivedMessage) {},
		MaxUnsent:   8,
	})

	frame, err := messages.NewMessageBuilder().BuildHeaderOnly(1, cmn.NullConnection, cmn.NullConnection)
	require.NoError(t, err)

	errCh := make(chan error, 8)
	require.NoError(t, conn.SendAsync(frame, nil)) // parks the pump
	require.Eventually(t, func() bool { return conn.NumUnsent() == 0 },
		time.Second, time.Millisecond)
	for i := 0; i < 4; i++ {
		require.NoError(t, conn.SendAsync(frame, func(err error) { errCh <- err }))
	}

	conn.Close()
	for i := 0; i < 4; i++ {
		select {
		case err := <-errCh:
			require.Error(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("pending completion never ran")
		}
	}
	require.False(t, conn.Connected())

	// closed connection refuses work
	require.True(t, cmn.IsErrNotConnected(conn.SendAsync(frame, nil)))
	ok, err := conn.SendSync(frame)
	require.False(t, ok)
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "connected", stConnected.String())
	require.Equal(t, "closed", stClosed.String())
}
