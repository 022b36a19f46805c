package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

// ErrMalformedPacket is returned for packets that are neither an ack frame nor a complete coded packet.
var ErrMalformedPacket = errors.New("malformed packet")

// Header is the fixed header of a coded packet.
//
//	[first unseen][window size][sequence][combination, 4 bytes little-endian][payload...]
type Header struct {
	AckFrame
	// Seq is the sequence number the combination is anchored at.
	Seq protocol.Seq
	// Combination holds the coefficient for Seq in its most significant bit,
	// the coefficient for Seq+1 in the next one, and so on.
	Combination uint32
}

// Write writes the header into the first HeaderLen bytes of b.
func (h *Header) Write(b []byte) {
	h.AckFrame.Write(b)
	b[2] = byte(h.Seq)
	binary.LittleEndian.PutUint32(b[3:protocol.HeaderLen], h.Combination)
}

// Append appends the header to b.
func (h *Header) Append(b []byte) []byte {
	b = h.AckFrame.Append(b)
	b = append(b, byte(h.Seq))
	return binary.LittleEndian.AppendUint32(b, h.Combination)
}

// Length of a written header
func (h *Header) Length() int {
	return protocol.HeaderLen
}

func (h *Header) String() string {
	return fmt.Sprintf("{first_unseen: %d, window: %d, seq: %d, combination: %032b}", h.FirstUnseen, h.WindowSize, h.Seq, h.Combination)
}

// A Packet is a parsed frame. Payload aliases the parsed buffer.
type Packet struct {
	Type    protocol.PacketType
	Header  Header
	Payload []byte
}

// ParsePacket parses an ack frame or a coded packet carrying a datagramSize payload.
func ParsePacket(data []byte, datagramSize int) (Packet, error) {
	switch len(data) {
	case protocol.AckFrameLen:
		return Packet{
			Type:   protocol.PacketTypeAck,
			Header: Header{AckFrame: parseAckFrame(data)},
		}, nil
	case protocol.HeaderLen + datagramSize:
		return Packet{
			Type: protocol.PacketTypeCoded,
			Header: Header{
				AckFrame:    parseAckFrame(data),
				Seq:         protocol.Seq(data[2]),
				Combination: binary.LittleEndian.Uint32(data[3:protocol.HeaderLen]),
			},
			Payload: data[protocol.HeaderLen:],
		}, nil
	default:
		return Packet{}, fmt.Errorf("%w: length %d, expected %d or %d", ErrMalformedPacket, len(data), protocol.AckFrameLen, protocol.HeaderLen+datagramSize)
	}
}

// Append appends the packet to b.
func (p *Packet) Append(b []byte) []byte {
	if p.Type == protocol.PacketTypeAck {
		return p.Header.AckFrame.Append(b)
	}
	b = p.Header.Append(b)
	return append(b, p.Payload...)
}

// Length of a written packet
func (p *Packet) Length() int {
	if p.Type == protocol.PacketTypeAck {
		return protocol.AckFrameLen
	}
	return protocol.HeaderLen + len(p.Payload)
}
