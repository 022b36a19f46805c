package protocol

import "fmt"

const (
	// AckFrameLen is the length of a frame carrying only the reverse-direction ack.
	AckFrameLen = 2
	// HeaderLen is the length of the header prefixed to every coded payload.
	HeaderLen = 7
)

// MaxWindowSize is the largest window a coefficient bitmap can describe.
const MaxWindowSize = 32

// InitialWindowSize is the send window used before the peer advertised one.
const InitialWindowSize = 4

// DefaultMaxWindowSize is the window capacity used if the Config doesn't set one.
const DefaultMaxWindowSize = 16

// DefaultDatagramSize is the datagram size used if the Config doesn't set one.
const DefaultDatagramSize = 1024

// MaxDatagramSize is the largest datagram that still fits a UDP packet with its header.
const MaxDatagramSize = 65507 - HeaderLen

const (
	// IdentityCombination marks a unit that represents exactly the datagram at its own sequence number.
	IdentityCombination uint32 = 0x80000000
	// InvalidCombination is returned when a combination can't be re-anchored without losing coefficients.
	InvalidCombination uint32 = 0xFFFFFFFF
)

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// PacketType distinguishes the two frame layouts on the wire.
type PacketType uint8

const (
	// PacketTypeAck is a 2 byte frame without coded payload.
	PacketTypeAck PacketType = iota
	// PacketTypeCoded carries a linear combination of datagrams.
	PacketTypeCoded
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeAck:
		return "ack"
	case PacketTypeCoded:
		return "coded"
	default:
		return fmt.Sprintf("unknown packet type: %d", t)
	}
}
