package rlnc

import (
	"context"
	"sync"

	"github.com/overlaymesh/rlnc/internal/utils/ringbuffer"
)

// The receiveQueue holds decoded datagrams until the application reads them.
type receiveQueue struct {
	rcvMx    sync.Mutex
	rcvQueue ringbuffer.RingBuffer[[]byte]
	maxLen   int
	rcvd     chan struct{} // used to notify Receive that a new datagram was received

	closeErr error
	closed   chan struct{}

	// dequeued lets the event loop know that there's room for more datagrams.
	dequeued func()
}

func newReceiveQueue(maxLen int, dequeued func()) *receiveQueue {
	q := &receiveQueue{
		maxLen:   maxLen,
		dequeued: dequeued,
		rcvd:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	q.rcvQueue.Init(maxLen)
	return q
}

// HasRoom says if another datagram can be added.
func (h *receiveQueue) HasRoom() bool {
	h.rcvMx.Lock()
	defer h.rcvMx.Unlock()
	return h.rcvQueue.Len() < h.maxLen
}

// Add adds a decoded datagram. The caller must check HasRoom first.
func (h *receiveQueue) Add(d []byte) {
	h.rcvMx.Lock()
	h.rcvQueue.PushBack(d)
	h.rcvMx.Unlock()
	select {
	case h.rcvd <- struct{}{}:
	default:
	}
}

// Receive blocks until a datagram was decoded.
// Datagrams decoded before the queue was closed are still returned.
func (h *receiveQueue) Receive(ctx context.Context) ([]byte, error) {
	for {
		h.rcvMx.Lock()
		if !h.rcvQueue.Empty() {
			d := h.rcvQueue.PopFront()
			h.rcvMx.Unlock()
			h.dequeued()
			return d, nil
		}
		h.rcvMx.Unlock()
		select {
		case <-h.rcvd:
			continue
		case <-h.closed:
			return nil, h.closeErr
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CloseWithError unblocks Receive. It must only be called once.
func (h *receiveQueue) CloseWithError(e error) {
	h.rcvMx.Lock()
	h.closeErr = e
	h.rcvMx.Unlock()
	close(h.closed)
}
