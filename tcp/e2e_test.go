// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dac1976/corelib-go/cmn"
	"github.com/dac1976/corelib-go/ioctx"
	"github.com/dac1976/corelib-go/messages"
	"github.com/dac1976/corelib-go/tcp"
)

const waitFor = 3 * time.Second

type recorder struct {
	ch chan *messages.ReceivedMessage
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan *messages.ReceivedMessage, 128)}
}

func (r *recorder) dispatch(msg *messages.ReceivedMessage) { r.ch <- msg }

func (r *recorder) next(t *testing.T) *messages.ReceivedMessage {
	t.Helper()
	select {
	case msg := <-r.ch:
		return msg
	case <-time.After(waitFor):
		t.Fatal("no message dispatched in time")
		return nil
	}
}

func (r *recorder) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case msg := <-r.ch:
		t.Fatalf("unexpected dispatch: message %d", msg.Header.MessageID)
	case <-time.After(d):
	}
}

func startServer(t *testing.T, tg *ioctx.ThreadGroup, rec *recorder) *tcp.TypedServer {
	t.Helper()
	server, err := tcp.NewTypedServer(tg, nil, tcp.ServerArgs{
		ListenPort: 0, // ephemeral
		Dispatch:   rec.dispatch,
	})
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return server
}

func serverConn(server *tcp.TypedServer) cmn.Connection {
	return cmn.Connection{Host: "127.0.0.1", Port: server.ListenPort()}
}

func newClient(t *testing.T, tg *ioctx.ThreadGroup, server *tcp.TypedServer, rec *recorder) *tcp.TypedClient {
	t.Helper()
	client := tcp.NewTypedClient(tg, nil, tcp.ClientArgs{
		Server:   serverConn(server),
		Dispatch: rec.dispatch,
	})
	t.Cleanup(client.Close)
	return client
}

// header-only echo: the dispatched header carries the client's own endpoint
func TestHeaderOnlyEcho(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)
	client := newClient(t, tg, server, newRecorder())

	require.True(t, client.SendHeaderToServerSync(42, cmn.NullConnection))

	msg := rec.next(t)
	require.EqualValues(t, 42, msg.Header.MessageID)
	require.Zero(t, msg.Header.BodyLength())
	require.False(t, msg.Header.Source.IsNull())

	details, err := client.GetClientDetailsForServer()
	require.NoError(t, err)
	require.Equal(t, details, msg.Header.Source)
}

func TestTypedProtobufRoundTrip(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)
	client := newClient(t, tg, server, newRecorder())

	values := make([]any, 100)
	for i := range values {
		values[i] = 666.666
	}
	payload, err := structpb.NewStruct(map[string]any{
		"name":    "I am a test message",
		"counter": 666,
		"values":  values,
	})
	require.NoError(t, err)

	require.True(t, client.SendTypedToServerAsync(payload, messages.ArchiveProtobuf, 666, cmn.NullConnection))

	msg := rec.next(t)
	require.EqualValues(t, 666, msg.Header.MessageID)
	require.Equal(t, messages.ArchiveProtobuf, msg.Header.Archive)

	out := &structpb.Struct{}
	require.NoError(t, messages.DecodeBody(msg, out))
	require.True(t, proto.Equal(payload, out))
}

// N async sends from one goroutine arrive in issue order
func TestSendOrdering(t *testing.T) {
	const n = 50

	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)
	client := newClient(t, tg, server, newRecorder())

	for i := int32(0); i < n; i++ {
		require.True(t, client.SendHeaderToServerAsync(i, cmn.NullConnection))
	}
	for i := int32(0); i < n; i++ {
		require.Equal(t, i, rec.next(t).Header.MessageID)
	}
}

func TestBroadcast(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	serverRec := newRecorder()
	server := startServer(t, tg, serverRec)

	recs := make([]*recorder, 3)
	for i := range recs {
		recs[i] = newRecorder()
		client := newClient(t, tg, server, recs[i])
		// connect and announce so the server has the peer in its map
		require.True(t, client.SendHeaderToServerSync(int32(i), cmn.NullConnection))
	}
	for range recs {
		serverRec.next(t)
	}
	require.Equal(t, 3, server.NumberOfClients())

	require.NoError(t, server.SendHeaderToAll(7, cmn.NullConnection))
	for _, rec := range recs {
		msg := rec.next(t)
		require.EqualValues(t, 7, msg.Header.MessageID)
		rec.quiet(t, 100*time.Millisecond) // exactly one each
	}
}

// a framing violation closes only the offending connection
func TestFramingIsolation(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)
	client := newClient(t, tg, server, newRecorder())
	require.True(t, client.SendHeaderToServerSync(1, cmn.NullConnection))
	rec.next(t)

	// a rogue peer spews garbage of header size
	rogue, err := net.Dial("tcp", serverConn(server).String())
	require.NoError(t, err)
	garbage := make([]byte, messages.HeaderSize)
	for i := range garbage {
		garbage[i] = 0xA5
	}
	_, err = rogue.Write(garbage)
	require.NoError(t, err)

	// server drops the rogue...
	require.Eventually(t, func() bool { return server.NumberOfClients() == 1 },
		waitFor, 10*time.Millisecond)
	rec.quiet(t, 100*time.Millisecond)

	// ...while the healthy connection keeps working
	require.True(t, client.SendHeaderToServerSync(2, cmn.NullConnection))
	require.EqualValues(t, 2, rec.next(t).Header.MessageID)
}

// a peer closing mid-frame never reaches the dispatcher; the client
// transparently reconnects on the next send
func TestCloseDuringPartialFrame(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)

	partial, err := net.Dial("tcp", serverConn(server).String())
	require.NoError(t, err)
	frame, err := messages.NewMessageBuilder().BuildHeaderOnly(9, cmn.NullConnection,
		cmn.Connection{Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)
	_, err = partial.Write(frame[:10]) // a fraction of the header
	require.NoError(t, err)
	partial.Close()

	rec.quiet(t, 200*time.Millisecond)
	require.Eventually(t, func() bool { return server.NumberOfClients() == 0 },
		waitFor, 10*time.Millisecond)

	// reconnect-on-demand after an explicit close
	client := newClient(t, tg, server, newRecorder())
	require.True(t, client.SendHeaderToServerSync(10, cmn.NullConnection))
	rec.next(t)
	client.CloseConnection()
	require.False(t, client.Connected())
	require.True(t, client.SendHeaderToServerSync(11, cmn.NullConnection))
	require.EqualValues(t, 11, rec.next(t).Header.MessageID)
}

func TestServerDetailsAndUnknownPeer(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)

	unknown := cmn.Connection{Host: "10.9.9.9", Port: 1234}
	details := server.ServerDetailsForClient(unknown)
	require.Equal(t, cmn.Connection{Host: "0.0.0.0", Port: server.ListenPort()}, details)

	err := server.SendHeaderToClientAsync(unknown, 1, cmn.NullConnection)
	require.True(t, cmn.IsErrUnknownConnection(err))

	// with a live peer: send to it by its observed address
	clientRec := newRecorder()
	client := newClient(t, tg, server, clientRec)
	require.True(t, client.SendHeaderToServerSync(5, cmn.NullConnection))
	peerAddr := rec.next(t).Header.Source

	require.NotEqual(t, cmn.Connection{Host: "0.0.0.0", Port: server.ListenPort()},
		server.ServerDetailsForClient(peerAddr))
	ok, err := server.SendHeaderToClientSync(peerAddr, 6, cmn.NullConnection)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 6, clientRec.next(t).Header.MessageID)
}

func TestAcceptorOpenClose(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)

	client := newClient(t, tg, server, newRecorder())
	require.True(t, client.SendHeaderToServerSync(1, cmn.NullConnection))
	rec.next(t)

	server.CloseAcceptor()

	// existing connection keeps working
	require.True(t, client.SendHeaderToServerSync(2, cmn.NullConnection))
	rec.next(t)

	// new connections are refused until the acceptor reopens
	refused := tcp.NewTypedClient(tg, nil, tcp.ClientArgs{
		Server:      serverConn(server),
		Dispatch:    func(*messages.ReceivedMessage) {},
		DialTimeout: 200 * time.Millisecond,
	})
	defer refused.Close()
	require.False(t, refused.SendHeaderToServerSync(3, cmn.NullConnection))

	require.NoError(t, server.OpenAcceptor())
	require.True(t, refused.SendHeaderToServerSync(4, cmn.NullConnection))
	require.EqualValues(t, 4, rec.next(t).Header.MessageID)
}

// two sends to one destination share a client; a third to another creates a
// second client
func TestClientListPooling(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	recA, recB := newRecorder(), newRecorder()
	serverA := startServer(t, tg, recA)
	serverB := startServer(t, tg, recB)

	pool := tcp.NewClientList(tg, nil, func(*messages.ReceivedMessage) {}, cmn.NagleOn, 0)
	defer pool.Close()

	require.True(t, pool.SendHeaderToServerSync(serverConn(serverA), 1, cmn.NullConnection))
	require.True(t, pool.SendHeaderToServerSync(serverConn(serverA), 2, cmn.NullConnection))
	require.True(t, pool.SendHeaderToServerSync(serverConn(serverB), 3, cmn.NullConnection))

	require.Equal(t, 2, pool.NumberOfClients())

	require.EqualValues(t, 1, recA.next(t).Header.MessageID)
	require.EqualValues(t, 2, recA.next(t).Header.MessageID)
	require.EqualValues(t, 3, recB.next(t).Header.MessageID)
	recA.quiet(t, 100*time.Millisecond)

	// one client per destination: the server observed a single peer
	require.Equal(t, 1, serverA.NumberOfClients())
	require.Equal(t, 1, serverB.NumberOfClients())

	// pool lookups
	require.True(t, pool.Connected(serverConn(serverA)))
	details, err := pool.ClientDetailsForServer(serverConn(serverA))
	require.NoError(t, err)
	require.Equal(t, serverConn(serverA), pool.ServerConnection(details))

	pool.CloseConnection(serverConn(serverA))
	require.False(t, pool.Connected(serverConn(serverA)))
	require.Equal(t, 2, pool.NumberOfClients()) // still pooled; reconnects on demand
	require.True(t, pool.SendHeaderToServerSync(serverConn(serverA), 4, cmn.NullConnection))
	require.EqualValues(t, 4, recA.next(t).Header.MessageID)
}

func TestTypedBufAndTextArchives(t *testing.T) {
	tg := ioctx.NewThreadGroup()
	t.Cleanup(func() { tg.Stop(); tg.Wait() })

	rec := newRecorder()
	server := startServer(t, tg, rec)
	client := newClient(t, tg, server, newRecorder())

	require.True(t, client.SendBufToServerAsync([]byte("opaque"), 20, cmn.NullConnection))
	msg := rec.next(t)
	require.EqualValues(t, 20, msg.Header.MessageID)
	require.Equal(t, []byte("opaque"), msg.Body)

	type pt struct {
		X int     `yaml:"x" msgpack:"x"`
		Y float64 `yaml:"y" msgpack:"y"`
	}
	require.True(t, client.SendTypedToServerSync(&pt{X: 1, Y: 2.5}, messages.ArchiveText, 21, cmn.NullConnection))
	msg = rec.next(t)
	require.Equal(t, messages.ArchiveText, msg.Header.Archive)
	var out pt
	require.NoError(t, messages.DecodeBody(msg, &out))
	require.Equal(t, pt{X: 1, Y: 2.5}, out)

	// serialization errors at the facade boundary map to false
	require.False(t, client.SendTypedToServerAsync(make(chan int), messages.ArchiveJSON, 22, cmn.NullConnection))
}
