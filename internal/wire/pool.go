package wire

import (
	"sync"
)

// MaxPacketBufferSize is the size of the buffers handed out by GetPacketBuffer.
// It fits the largest UDP payload.
const MaxPacketBufferSize = 65507

// PacketBuffer is a pooled buffer for reading and writing packets.
type PacketBuffer struct {
	Data []byte
}

var pool sync.Pool

func init() {
	pool.New = func() interface{} {
		return &PacketBuffer{Data: make([]byte, MaxPacketBufferSize)}
	}
}

// GetPacketBuffer returns a buffer of MaxPacketBufferSize bytes.
func GetPacketBuffer() *PacketBuffer {
	b := pool.Get().(*PacketBuffer)
	b.Data = b.Data[:MaxPacketBufferSize]
	return b
}

// PutPacketBuffer returns a buffer obtained from GetPacketBuffer.
func PutPacketBuffer(b *PacketBuffer) {
	if cap(b.Data) != MaxPacketBufferSize {
		panic("wire.PutPacketBuffer called with packet of wrong size!")
	}
	pool.Put(b)
}
