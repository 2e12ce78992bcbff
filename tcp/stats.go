// Package tcp provides framed bi-directional TCP messaging: connections,
// clients, servers, typed facades, and a per-destination client pool
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package tcp

import (
	ratomic "sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats counts one connection's traffic.
type Stats struct {
	FramesSent ratomic.Int64
	BytesSent  ratomic.Int64
	FramesRcvd ratomic.Int64
	BytesRcvd  ratomic.Int64
}

// StatsSnapshot is a point-in-time copy of a connection's Stats.
type StatsSnapshot struct {
	FramesSent, BytesSent int64
	FramesRcvd, BytesRcvd int64
}

func (s *Stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		FramesSent: s.FramesSent.Load(),
		BytesSent:  s.BytesSent.Load(),
		FramesRcvd: s.FramesRcvd.Load(),
		BytesRcvd:  s.BytesRcvd.Load(),
	}
}

func (s *Stats) tx(n int) {
	s.FramesSent.Add(1)
	s.BytesSent.Add(int64(n))
	mFramesSent.Inc()
	mBytesSent.Add(float64(n))
}

func (s *Stats) rx(n int) {
	s.FramesRcvd.Add(1)
	s.BytesRcvd.Add(int64(n))
	mFramesRcvd.Inc()
	mBytesRcvd.Add(float64(n))
}

// process-wide counters
var (
	mFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_frames_sent_total",
		Help: "Frames written to sockets.",
	})
	mBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_bytes_sent_total",
		Help: "Bytes written to sockets.",
	})
	mFramesRcvd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_frames_received_total",
		Help: "Complete frames dispatched.",
	})
	mBytesRcvd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_bytes_received_total",
		Help: "Bytes read from sockets.",
	})
	mQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_queue_drops_total",
		Help: "Async sends refused because the send queue was full.",
	})
	mFramingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corelib_tcp_framing_errors_total",
		Help: "Connections closed due to magic/checksum/length violations.",
	})
)
