package rlnc

import (
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"
)

// A LossyLink drops a fraction of the packets written to the underlying link.
// It is used to test and demonstrate the link's behavior under loss.
type LossyLink struct {
	Link

	mx       sync.Mutex
	rand     *rand.Rand
	lossRate float64

	dropped atomic.Uint64
}

var _ Link = &LossyLink{}

// NewLossyLink wraps l, dropping every written packet with probability lossRate.
func NewLossyLink(l Link, lossRate float64, seed uint64) *LossyLink {
	return &LossyLink{
		Link:     l,
		rand:     rand.New(rand.NewSource(seed)),
		lossRate: lossRate,
	}
}

func (l *LossyLink) shouldDrop() bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	return l.rand.Float64() < l.lossRate
}

// WritePacket writes b to the underlying link, unless it is chosen to be lost.
func (l *LossyLink) WritePacket(b []byte) error {
	if l.shouldDrop() {
		l.dropped.Add(1)
		return nil
	}
	return l.Link.WritePacket(b)
}

// Dropped is the number of packets dropped so far.
func (l *LossyLink) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *LossyLink) LocalAddr() net.Addr {
	if a, ok := l.Link.(addressedLink); ok {
		return a.LocalAddr()
	}
	return nil
}

func (l *LossyLink) RemoteAddr() net.Addr {
	if a, ok := l.Link.(addressedLink); ok {
		return a.RemoteAddr()
	}
	return nil
}
