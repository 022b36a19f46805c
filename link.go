package rlnc

import "net"

// A Link carries packets between two endpoints.
// It may lose packets, but must not corrupt them.
// WritePacket and ReadPacket may be called concurrently.
type Link interface {
	// WritePacket sends a packet. The link must not retain b.
	WritePacket(b []byte) error
	// ReadPacket blocks until a packet is received, and copies it into b.
	ReadPacket(b []byte) (int, error)
	// Close unblocks pending reads and releases the link.
	Close() error
}

// Links that know their addresses can implement this interface.
// The addresses are passed to the tracer.
type addressedLink interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
