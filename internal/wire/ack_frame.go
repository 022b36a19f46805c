package wire

import (
	"fmt"

	"github.com/overlaymesh/rlnc/internal/protocol"
)

// An AckFrame is the acknowledgement piggybacked on every packet.
// It describes the receive direction of the sending coder.
type AckFrame struct {
	// FirstUnseen is the first sequence number the receiver holds no combination for.
	FirstUnseen protocol.Seq
	// WindowSize is the number of datagrams the receiver is willing to buffer past FirstUnseen.
	WindowSize uint8
}

func parseAckFrame(b []byte) AckFrame {
	return AckFrame{
		FirstUnseen: protocol.Seq(b[0]),
		WindowSize:  b[1],
	}
}

// Write writes the frame into the first AckFrameLen bytes of b.
func (f *AckFrame) Write(b []byte) {
	b[0] = byte(f.FirstUnseen)
	b[1] = f.WindowSize
}

// Append appends the ack frame to b.
func (f *AckFrame) Append(b []byte) []byte {
	return append(b, byte(f.FirstUnseen), f.WindowSize)
}

// Length of a written frame
func (f *AckFrame) Length() int {
	return protocol.AckFrameLen
}

func (f *AckFrame) String() string {
	return fmt.Sprintf("ack{first_unseen: %d, window: %d}", f.FirstUnseen, f.WindowSize)
}
