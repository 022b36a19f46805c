package rlnc

import (
	"errors"

	"github.com/overlaymesh/rlnc/internal/nc"
	"github.com/overlaymesh/rlnc/internal/wire"
)

var (
	// ErrDatagramSize is returned for datagrams that don't match the configured datagram size.
	ErrDatagramSize = nc.ErrDatagramSize
	// ErrQueueFull is returned by Coder.Enqueue when the send window is full.
	ErrQueueFull = nc.ErrQueueFull
	// ErrBufferTooSmall is returned when an output buffer is too small.
	ErrBufferTooSmall = nc.ErrBufferTooSmall
	// ErrMalformedPacket is returned for packets of an unexpected length.
	ErrMalformedPacket = wire.ErrMalformedPacket
	// ErrClosed is returned when using a closed Coder.
	ErrClosed = nc.ErrClosed
	// ErrConnClosed is returned when using a Conn that was closed locally.
	ErrConnClosed = errors.New("connection closed")
)

// A ProtocolViolationError is returned when the peer sent a combination
// outside of the advertised window. It terminates the connection.
type ProtocolViolationError = nc.ProtocolViolationError
