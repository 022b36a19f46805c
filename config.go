package rlnc

import (
	"fmt"
	"time"

	"github.com/overlaymesh/rlnc/internal/protocol"
	"github.com/overlaymesh/rlnc/logging"
)

const (
	// DefaultPacketRate is the number of packets per second sent if the Config doesn't set one.
	DefaultPacketRate = 1000
	// DefaultPacketBurst is the number of packets that may be sent back to back.
	DefaultPacketBurst = 4
	// DefaultMaxQueuedDatagrams is the number of datagrams SendDatagram queues before blocking.
	DefaultMaxQueuedDatagrams = 32
	// DefaultMaxReceiveQueue is the number of decoded datagrams waiting for ReceiveDatagram.
	DefaultMaxReceiveQueue = 128
)

const (
	// persistPackets is the number of packet intervals a reopened receive window waits
	// for a coded packet before it is advertised again.
	persistPackets = 4
	// maxPersistInterval limits the backoff of repeated window advertisements.
	maxPersistInterval = time.Second
)

// maxIncomingPackets is the number of packets read from the link but not yet processed.
// Packets arriving while this queue is full are dropped.
const maxIncomingPackets = 256

// Config contains all configuration data needed for a Conn.
type Config struct {
	// MaxWindowSize is the number of datagrams that can be in flight.
	// It must be a power of two, and at most 32.
	// If not set, it uses protocol.DefaultMaxWindowSize.
	MaxWindowSize int
	// DatagramSize is the size of every datagram. Both endpoints must use the same size.
	DatagramSize int
	// PacketRate is the number of packets sent per second, including retransmitted combinations.
	PacketRate float64
	// PacketBurst is the number of packets that may be sent without pacing.
	PacketBurst int
	// MaxQueuedDatagrams is the number of datagrams SendDatagram accepts
	// before blocking, in addition to the send window.
	MaxQueuedDatagrams int
	// MaxReceiveQueue is the number of decoded datagrams buffered for ReceiveDatagram.
	// Once it's full, the advertised window shrinks and the peer slows down.
	MaxReceiveQueue int
	// Seed seeds the generator of random coefficients.
	// If zero, a time based seed is used.
	Seed uint64
	// Tracer creates a tracer for the connection.
	Tracer func() *logging.ConnectionTracer
}

// Clone clones a Config
func (c *Config) Clone() *Config {
	copy := *c
	return &copy
}

func validateConfig(config *Config) error {
	if config == nil {
		return nil
	}
	if config.MaxWindowSize != 0 && (!protocol.IsPowerOfTwo(config.MaxWindowSize) || config.MaxWindowSize > protocol.MaxWindowSize) {
		return fmt.Errorf("invalid MaxWindowSize %d: must be a power of two no larger than %d", config.MaxWindowSize, protocol.MaxWindowSize)
	}
	if config.DatagramSize < 0 || config.DatagramSize > protocol.MaxDatagramSize {
		return fmt.Errorf("invalid DatagramSize %d: must be between 1 and %d", config.DatagramSize, protocol.MaxDatagramSize)
	}
	if config.PacketRate < 0 {
		return fmt.Errorf("invalid PacketRate %f", config.PacketRate)
	}
	if config.PacketBurst < 0 {
		return fmt.Errorf("invalid PacketBurst %d", config.PacketBurst)
	}
	if config.MaxQueuedDatagrams < 0 {
		return fmt.Errorf("invalid MaxQueuedDatagrams %d", config.MaxQueuedDatagrams)
	}
	if config.MaxReceiveQueue < 0 {
		return fmt.Errorf("invalid MaxReceiveQueue %d", config.MaxReceiveQueue)
	}
	return nil
}

// populateConfig populates fields in the Config with their default values, if none are set
// it may be called with nil
func populateConfig(config *Config) *Config {
	if config == nil {
		config = &Config{}
	}
	maxWindowSize := config.MaxWindowSize
	if maxWindowSize == 0 {
		maxWindowSize = protocol.DefaultMaxWindowSize
	}
	datagramSize := config.DatagramSize
	if datagramSize == 0 {
		datagramSize = protocol.DefaultDatagramSize
	}
	packetRate := config.PacketRate
	if packetRate == 0 {
		packetRate = DefaultPacketRate
	}
	packetBurst := config.PacketBurst
	if packetBurst == 0 {
		packetBurst = DefaultPacketBurst
	}
	maxQueuedDatagrams := config.MaxQueuedDatagrams
	if maxQueuedDatagrams == 0 {
		maxQueuedDatagrams = DefaultMaxQueuedDatagrams
	}
	maxReceiveQueue := config.MaxReceiveQueue
	if maxReceiveQueue == 0 {
		maxReceiveQueue = DefaultMaxReceiveQueue
	}

	return &Config{
		MaxWindowSize:      maxWindowSize,
		DatagramSize:       datagramSize,
		PacketRate:         packetRate,
		PacketBurst:        packetBurst,
		MaxQueuedDatagrams: maxQueuedDatagrams,
		MaxReceiveQueue:    maxReceiveQueue,
		Seed:               config.Seed,
		Tracer:             config.Tracer,
	}
}
