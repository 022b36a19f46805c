// Package logging defines a logging interface for rlnc.
// This package should not be considered stable
package logging

import (
	"net"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

type (
	// A Seq is a 1-byte wrapping sequence number
	Seq = protocol.Seq
	// The PacketType is the type of a packet on the wire
	PacketType = protocol.PacketType
)

const (
	// PacketTypeAck is a frame carrying only an acknowledgement
	PacketTypeAck = protocol.PacketTypeAck
	// PacketTypeCoded is a packet carrying a linear combination of datagrams
	PacketTypeCoded = protocol.PacketTypeCoded
)

// The PacketHeader is the header of a sent or received packet.
// Seq and Combination are only set for coded packets.
type PacketHeader struct {
	Type        PacketType
	FirstUnseen Seq
	WindowSize  uint8
	Seq         Seq
	Combination uint32
}

// PacketDropReason is the reason why a packet was dropped
type PacketDropReason uint8

const (
	// PacketDropUnknown is used when the reason is unknown
	PacketDropUnknown PacketDropReason = iota
	// PacketDropMalformed is used when a packet has an invalid length
	PacketDropMalformed
	// PacketDropLinkLoss is used when a lossy link discarded the packet
	PacketDropLinkLoss
	// PacketDropReceiveQueueFull is used when the receive loop couldn't keep up
	PacketDropReceiveQueueFull
)

// A ConnectionTracer records events of one connection.
// Every callback is optional.
type ConnectionTracer struct {
	StartedConnection     func(local, remote net.Addr)
	SentPacket            func(hdr *PacketHeader, size int)
	ReceivedPacket        func(hdr *PacketHeader, size int, useful bool)
	DroppedPacket         func(size int, reason PacketDropReason)
	DeliveredDatagram     func(size int)
	AcknowledgedDatagrams func(count int, windowStart Seq)
	ClosedConnection      func(error)
	Debug                 func(name, msg string)
	Close                 func()
}
