package rlnc

import (
	"context"
	"sync"

	"github.com/overlaymesh/rlnc/internal/utils/ringbuffer"
)

// The sendQueue holds datagrams until the coder has room for them.
type sendQueue struct {
	sendMx    sync.Mutex
	sendQueue ringbuffer.RingBuffer[[]byte]
	maxLen    int
	sent      chan struct{} // used to notify Add that a datagram was dequeued

	closeErr error
	closed   chan struct{}

	// hasData lets the event loop know there's more data in the send queue.
	hasData func()
}

func newSendQueue(maxLen int, hasData func()) *sendQueue {
	q := &sendQueue{
		maxLen:  maxLen,
		hasData: hasData,
		sent:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
	q.sendQueue.Init(maxLen)
	return q
}

// Add queues a new datagram for sending.
// Once maxLen datagrams are queued, Add blocks until the queue size has reduced.
func (h *sendQueue) Add(ctx context.Context, d []byte) error {
	h.sendMx.Lock()

	for {
		select {
		case <-h.closed:
			h.sendMx.Unlock()
			return h.closeErr
		default:
		}
		if h.sendQueue.Len() < h.maxLen {
			h.sendQueue.PushBack(d)
			h.sendMx.Unlock()
			h.hasData()
			return nil
		}
		select {
		case <-h.sent: // drain the queue so we don't loop immediately
		default:
		}
		h.sendMx.Unlock()
		select {
		case <-h.closed:
			return h.closeErr
		case <-ctx.Done():
			return ctx.Err()
		case <-h.sent:
		}
		h.sendMx.Lock()
	}
}

// Peek gets the next datagram for sending.
// If actually handed to the coder, Pop needs to be called before the next call to Peek.
func (h *sendQueue) Peek() []byte {
	h.sendMx.Lock()
	defer h.sendMx.Unlock()
	if h.sendQueue.Empty() {
		return nil
	}
	return h.sendQueue.PeekFront()
}

func (h *sendQueue) Pop() {
	h.sendMx.Lock()
	defer h.sendMx.Unlock()
	_ = h.sendQueue.PopFront()
	select {
	case h.sent <- struct{}{}:
	default:
	}
}

func (h *sendQueue) Len() int {
	h.sendMx.Lock()
	defer h.sendMx.Unlock()
	return h.sendQueue.Len()
}

// CloseWithError unblocks Add. It must only be called once.
func (h *sendQueue) CloseWithError(e error) {
	h.sendMx.Lock()
	h.closeErr = e
	h.sendMx.Unlock()
	close(h.closed)
}
