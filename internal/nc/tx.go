package nc

import (
	"fmt"

	"github.com/overlaymesh/rlnc/internal/protocol"

	"golang.org/x/exp/rand"
)

// number of random coefficient bits set in addition to the oldest unit
const randomCoefficients = 8

func (h *half) hasRoom() bool {
	return h.queueSize < len(h.packets)
}

// enqueue appends a copy of d as a fresh identity unit.
func (h *half) enqueue(d []byte) error {
	if len(d) != h.datagramSize {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrDatagramSize, len(d), h.datagramSize)
	}
	if !h.hasRoom() {
		return ErrQueueFull
	}
	seq := h.windowStart.Add(h.queueSize)
	p := h.slot(seq)
	p.seq = seq
	p.combination = protocol.IdentityCombination
	p.flags = flagFresh
	p.payload = h.pool.get()
	copy(p.payload, d)
	h.queueSize++
	return nil
}

// combineRandom writes a random combination of the send window into out.
// out.payload must hold datagramSize bytes.
// The first fresh unit is always part of the combination, all other fresh units are left out.
func (h *half) combineRandom(out *codedPacket, r *rand.Rand) {
	coefficients := uint32(1)
	for i := 0; i < randomCoefficients; i++ {
		coefficients |= 1 << (r.Uint32() & 31)
	}

	out.seq = h.windowStart
	out.combination = 0
	clear(out.payload)

	var addedFresh bool
	for i := 0; i < int(h.windowSize); i++ {
		p := h.slot(h.windowStart.Add(i))
		if p.empty() {
			continue
		}
		if p.flags&flagFresh != 0 {
			if addedFresh {
				continue
			}
			combinePackets(p, out)
			p.flags &^= flagFresh
			addedFresh = true
			continue
		}
		if coefficients&1 != 0 {
			combinePackets(p, out)
		}
		coefficients >>= 1
	}
}

// ack processes the peer's acknowledgement and returns the number of released units.
// Acks for sequence numbers that were never sent are ignored, and so is the
// window of an ack older than the current window start.
func (h *half) ack(firstUnseen protocol.Seq, windowSize uint8) int {
	if firstUnseen.Compare(h.windowStart) < 0 || firstUnseen.Compare(h.windowStart.Add(h.queueSize)) > 0 {
		return 0
	}
	if int(windowSize) > len(h.packets) {
		windowSize = uint8(len(h.packets))
	}
	h.windowSize = windowSize

	var released int
	for h.windowStart != firstUnseen {
		p := h.slot(h.windowStart)
		if !p.empty() {
			h.free(p)
		}
		h.windowStart++
		released++
	}
	return released
}
