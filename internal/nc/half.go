package nc

import (
	"github.com/overlaymesh/rlnc/internal/protocol"
)

// payloadPool recycles the datagram-sized payload buffers of one coder.
type payloadPool struct {
	size int
	free [][]byte
	// number of buffers handed out and not yet returned
	outstanding int
}

func newPayloadPool(size int) *payloadPool {
	return &payloadPool{size: size}
}

func (p *payloadPool) get() []byte {
	p.outstanding++
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return b
	}
	return make([]byte, p.size)
}

func (p *payloadPool) put(b []byte) {
	if cap(b) < p.size {
		panic("nc: payload of wrong size returned to pool")
	}
	p.outstanding--
	p.free = append(p.free, b[:p.size])
}

// A half holds the state of one direction of a coder.
type half struct {
	// number of units the peer accepts combined, only used for TX
	windowSize  uint8
	windowStart protocol.Seq
	// next sequence number handed to the application, only used for RX
	deliverNext protocol.Seq

	datagramSize int
	packets      []codedPacket
	// number of occupied slots
	queueSize int

	pool *payloadPool
}

func newHalf(capacity, datagramSize int, windowSize uint8, pool *payloadPool) *half {
	return &half{
		windowSize:   windowSize,
		datagramSize: datagramSize,
		packets:      make([]codedPacket, capacity),
		pool:         pool,
	}
}

func (h *half) capacity() int {
	return len(h.packets)
}

func (h *half) index(seq protocol.Seq) int {
	return seq.Index(len(h.packets))
}

func (h *half) slot(seq protocol.Seq) *codedPacket {
	return &h.packets[h.index(seq)]
}

// free returns the payload of an occupied slot and empties it.
func (h *half) free(p *codedPacket) {
	h.pool.put(p.payload)
	*p = codedPacket{}
	h.queueSize--
}

func (h *half) freeAll() {
	for i := range h.packets {
		if !h.packets[i].empty() {
			h.free(&h.packets[i])
		}
	}
}

// snapshot describes the occupied slots in slot order.
func (h *half) snapshot() Window {
	w := Window{
		Start:       h.windowStart,
		Size:        h.windowSize,
		DeliverNext: h.deliverNext,
		Capacity:    len(h.packets),
	}
	for i := range h.packets {
		p := &h.packets[i]
		if p.empty() {
			continue
		}
		w.Units = append(w.Units, Unit{
			Slot:        i,
			Seq:         p.seq,
			Combination: p.combination,
			Fresh:       p.flags&flagFresh != 0,
		})
	}
	return w
}
