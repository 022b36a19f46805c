package nc

import (
	"errors"
	"fmt"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

var (
	// ErrDatagramSize is returned for datagrams that don't match the coder's datagram size.
	ErrDatagramSize = errors.New("datagram has wrong size")
	// ErrQueueFull is returned by Enqueue when the send window is full.
	// The caller should retry after the peer acknowledged datagrams.
	ErrQueueFull = errors.New("send queue full")
	// ErrBufferTooSmall is returned when an output buffer can't hold a packet or datagram.
	ErrBufferTooSmall = errors.New("buffer too small")
	// ErrClosed is returned when using a closed coder.
	ErrClosed = errors.New("coder closed")
)

// A ProtocolViolationError is returned when a decoded unit would overwrite a unit
// anchored at a different sequence number. The peer violated the advertised window.
// The coder is unusable afterwards.
type ProtocolViolationError struct {
	Slot     int
	Stored   protocol.Seq
	Incoming protocol.Seq
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: unit %d collides with unit %d in slot %d", e.Incoming, e.Stored, e.Slot)
}
