package rlnc

import (
	"net"
	"sync"
)

// pipeQueueLen is the number of packets buffered per direction of a pipe.
// Packets written to a full pipe are lost.
const pipeQueueLen = 64

type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

type pipeLink struct {
	in  <-chan []byte
	out chan<- []byte

	local, remote pipeAddr

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Link = &pipeLink{}

// NewPipe creates a pair of connected in-memory links.
// Like a datagram socket, a pipe drops packets when the reader falls behind.
func NewPipe() (Link, Link) {
	ab := make(chan []byte, pipeQueueLen)
	ba := make(chan []byte, pipeQueueLen)
	a := &pipeLink{in: ba, out: ab, local: "a", remote: "b", closed: make(chan struct{})}
	b := &pipeLink{in: ab, out: ba, local: "b", remote: "a", closed: make(chan struct{})}
	return a, b
}

func (l *pipeLink) WritePacket(b []byte) error {
	select {
	case <-l.closed:
		return net.ErrClosed
	default:
	}
	p := make([]byte, len(b))
	copy(p, b)
	select {
	case l.out <- p:
	default:
	}
	return nil
}

func (l *pipeLink) ReadPacket(b []byte) (int, error) {
	select {
	case p := <-l.in:
		return copy(b, p), nil
	case <-l.closed:
		return 0, net.ErrClosed
	}
}

func (l *pipeLink) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeLink) LocalAddr() net.Addr  { return l.local }
func (l *pipeLink) RemoteAddr() net.Addr { return l.remote }
