package nc

import (
	"crypto/subtle"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

// flagFresh marks a TX unit that was never part of an emitted combination.
const flagFresh uint8 = 1 << 0

// A codedPacket is a linear combination of datagrams.
// Bit 31 of combination is the coefficient of seq, bit 30 the one of seq+1, and so on.
type codedPacket struct {
	seq         protocol.Seq
	combination uint32
	flags       uint8
	payload     []byte
}

func (p *codedPacket) empty() bool {
	return p.payload == nil
}

// combineMasks returns the coefficient bitmap of dst after adding src to it.
// It returns protocol.InvalidCombination if src can't be expressed relative to dst's anchor.
func combineMasks(src, dst *codedPacket) uint32 {
	offset := src.seq.Sub(dst.seq)
	mask := src.combination >> offset
	if mask<<offset != src.combination {
		return protocol.InvalidCombination
	}
	return dst.combination ^ mask
}

// combinePackets adds src to dst. Adding the same src twice restores dst.
func combinePackets(src, dst *codedPacket) {
	dst.combination = combineMasks(src, dst)
	subtle.XORBytes(dst.payload, dst.payload, src.payload)
}
