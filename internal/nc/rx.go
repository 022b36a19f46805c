package nc

import (
	"math/bits"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

// getAck returns the first sequence number no unit is anchored at,
// and the number of units the sender may combine starting there.
func (h *half) getAck() (protocol.Seq, uint8) {
	seq := h.windowStart
	for i := 0; i < len(h.packets); i++ {
		p := h.slot(seq)
		if p.empty() || p.seq != seq {
			break
		}
		seq++
	}

	// Undelivered units and the sender's window must fit a single coefficient bitmap.
	window := protocol.MaxWindowSize
	if len(h.packets) < window {
		window = len(h.packets)
	}
	window -= int(seq.Sub(h.deliverNext))
	if window < 0 {
		window = 0
	}
	return seq, uint8(window)
}

// combine reduces in against the stored units and stores the result.
// in.payload is taken over by the half if the combination carries new information.
func (h *half) combine(in *codedPacket) (bool, error) {
	if in.combination == 0 || in.seq.Compare(h.windowStart) < 0 {
		return false, nil
	}

	for i := range h.packets {
		p := &h.packets[i]
		if p.empty() || p.seq.Compare(in.seq) < 0 {
			continue
		}
		mask := combineMasks(p, in)
		if mask == 0 {
			return false, nil
		}
		if mask < in.combination {
			combinePackets(p, in)
		}
	}

	shift := bits.LeadingZeros32(in.combination)
	in.seq = in.seq.Add(shift)
	in.combination <<= shift

	idx := h.index(in.seq)
	if stored := &h.packets[idx]; !stored.empty() {
		return false, &ProtocolViolationError{
			Slot:     idx,
			Stored:   stored.seq,
			Incoming: in.seq,
		}
	}

	for i := range h.packets {
		p := &h.packets[i]
		if p.empty() || p.seq.Compare(in.seq) > 0 {
			continue
		}
		if combineMasks(in, p) < p.combination {
			combinePackets(in, p)
		}
	}

	in.flags = 0
	h.packets[idx] = *in
	h.queueSize++
	return true, nil
}

// advanceWindow moves the window start to the sender's window start,
// releasing the units that were already delivered.
func (h *half) advanceWindow(start protocol.Seq) {
	for h.windowStart.Compare(start) < 0 {
		if h.windowStart.Compare(h.deliverNext) < 0 {
			if p := h.slot(h.windowStart); !p.empty() && p.seq == h.windowStart {
				h.free(p)
			}
		}
		h.windowStart++
	}
}

// nextDelivered copies the next in-order datagram into b.
// It returns 0 if that datagram isn't decoded yet.
func (h *half) nextDelivered(b []byte) (int, error) {
	if len(b) < h.datagramSize {
		return 0, ErrBufferTooSmall
	}
	p := h.slot(h.deliverNext)
	if p.empty() || p.seq != h.deliverNext || p.combination != protocol.IdentityCombination {
		return 0, nil
	}
	copy(b, p.payload)
	h.deliverNext++
	if h.deliverNext.Compare(h.windowStart) <= 0 {
		h.free(p)
	}
	return h.datagramSize, nil
}
