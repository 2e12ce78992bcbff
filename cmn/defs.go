// Package cmn provides common types shared by the corelib messaging packages
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package cmn

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// MaxUnsentAsyncMsgCount is the default bound on a connection's send queue.
// Async sends attempted against a full queue are refused (see ErrQueueFull).
const MaxUnsentAsyncMsgCount = 1000

// SendOption controls the use of Nagle's algorithm on a socket.
type SendOption int

const (
	NagleOn SendOption = iota
	NagleOff
)

func (o SendOption) String() string {
	if o == NagleOff {
		return "nagle-off"
	}
	return "nagle-on"
}

// Connection identifies one end of a TCP connection: address (or host name)
// plus port. The zero value is the distinguished "null" connection.
type Connection struct {
	Host string
	Port uint16
}

// NullConnection denotes "unspecified" - e.g. a response address meaning
// "reply to the sending socket".
var NullConnection = Connection{}

func (c Connection) IsNull() bool { return c.Host == "" && c.Port == 0 }

func (c Connection) String() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// ParseConnection splits a "host:port" string, e.g. net.Addr.String() output.
func ParseConnection(hostport string) (Connection, error) {
	host, ps, err := net.SplitHostPort(hostport)
	if err != nil {
		return NullConnection, errors.Wrapf(err, "invalid address %q", hostport)
	}
	port, err := strconv.ParseUint(ps, 10, 16)
	if err != nil {
		return NullConnection, errors.Wrapf(err, "invalid port in %q", hostport)
	}
	return Connection{Host: host, Port: uint16(port)}, nil
}
