package nc

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/overlaymesh/rlnc/internal/protocol"
	"github.com/overlaymesh/rlnc/internal/utils"
	"github.com/overlaymesh/rlnc/internal/wire"

	"golang.org/x/exp/rand"
)

// Stats are counters maintained by a Coder.
type Stats struct {
	DatagramsEnqueued  uint64
	PacketsSent        uint64
	AcksSent           uint64
	PacketsReceived    uint64
	MalformedPackets   uint64
	UselessPackets     uint64
	DatagramsDelivered uint64
	DatagramsReleased  uint64
}

// A Unit is a stored linear combination.
type Unit struct {
	Slot        int
	Seq         protocol.Seq
	Combination uint32
	Fresh       bool
}

// Window is a snapshot of one direction of a Coder.
type Window struct {
	Start       protocol.Seq
	Size        uint8
	DeliverNext protocol.Seq
	Capacity    int
	Units       []Unit
}

// An Option configures a Coder.
type Option func(*Coder)

// WithRand sets the generator used to pick coefficients.
func WithRand(r *rand.Rand) Option {
	return func(c *Coder) {
		c.rand = r
	}
}

// WithLogger sets the logger.
func WithLogger(l utils.Logger) Option {
	return func(c *Coder) {
		c.logger = l
	}
}

// A Coder is one endpoint of a network coded link.
// It encodes the datagrams sent to the peer and decodes the packets received from it.
// A Coder is not safe for concurrent use.
type Coder struct {
	datagramSize int
	maxWindow    int

	tx, rx *half
	pool   *payloadPool

	rand   *rand.Rand
	logger utils.Logger

	stats  Stats
	closed bool
	// set when the peer violated the protocol
	err error
}

// New creates a coder. maxWindowSize must be a power of two not larger than protocol.MaxWindowSize.
func New(maxWindowSize, datagramSize int, opts ...Option) (*Coder, error) {
	if !protocol.IsPowerOfTwo(maxWindowSize) || maxWindowSize > protocol.MaxWindowSize {
		return nil, fmt.Errorf("invalid window size %d: must be a power of two between 1 and %d", maxWindowSize, protocol.MaxWindowSize)
	}
	if datagramSize < 1 || datagramSize > protocol.MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d is not between 1 and %d", ErrDatagramSize, datagramSize, protocol.MaxDatagramSize)
	}
	initialWindow := protocol.InitialWindowSize
	if maxWindowSize < initialWindow {
		initialWindow = maxWindowSize
	}
	pool := newPayloadPool(datagramSize)
	c := &Coder{
		datagramSize: datagramSize,
		maxWindow:    maxWindowSize,
		tx:           newHalf(maxWindowSize, datagramSize, uint8(initialWindow), pool),
		rx:           newHalf(2*maxWindowSize, datagramSize, 0, pool),
		pool:         pool,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rand == nil {
		c.rand = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	if c.logger == nil {
		c.logger = utils.DefaultLogger
	}
	return c, nil
}

// DatagramSize is the size of every datagram carried by this coder.
func (c *Coder) DatagramSize() int { return c.datagramSize }

// PacketSize is the size of a packet carrying a combination.
func (c *Coder) PacketSize() int { return protocol.HeaderLen + c.datagramSize }

// MaxWindowSize is the send window capacity.
func (c *Coder) MaxWindowSize() int { return c.maxWindow }

func (c *Coder) usable() error {
	if c.closed {
		return ErrClosed
	}
	return c.err
}

// Enqueue queues a copy of d for sending.
// It returns ErrQueueFull if the send window is full.
func (c *Coder) Enqueue(d []byte) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.tx.enqueue(d); err != nil {
		return err
	}
	c.stats.DatagramsEnqueued++
	return nil
}

// HasRoom says if Enqueue would accept another datagram.
func (c *Coder) HasRoom() bool {
	return c.usable() == nil && c.tx.hasRoom()
}

// QueueLen is the number of datagrams not yet acknowledged by the peer.
func (c *Coder) QueueLen() int {
	return c.tx.queueSize
}

// SendWindow is the number of datagrams the peer currently accepts combined.
// While it is 0, ProducePacket only produces ack frames.
func (c *Coder) SendWindow() int {
	return int(c.tx.windowSize)
}

// ProducePacket writes the next packet to b and returns its length.
// The packet is an ack frame if there's nothing to send.
// b must be able to hold PacketSize bytes.
func (c *Coder) ProducePacket(b []byte) (int, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}
	size := c.PacketSize()
	if len(b) < size {
		return 0, ErrBufferTooSmall
	}

	firstUnseen, window := c.rx.getAck()
	hdr := wire.Header{AckFrame: wire.AckFrame{FirstUnseen: firstUnseen, WindowSize: window}}
	if c.tx.queueSize > 0 {
		out := codedPacket{payload: b[protocol.HeaderLen:size]}
		c.tx.combineRandom(&out, c.rand)
		if out.combination != 0 {
			hdr.Seq = out.seq
			hdr.Combination = out.combination
			hdr.Write(b)
			c.stats.PacketsSent++
			if c.logger.Debug() {
				c.logger.Debugf("-> %s", &hdr)
			}
			return size, nil
		}
	}
	hdr.AckFrame.Write(b)
	c.stats.AcksSent++
	if c.logger.Debug() {
		c.logger.Debugf("-> %s", &hdr.AckFrame)
	}
	return protocol.AckFrameLen, nil
}

// Ingest processes a packet received from the peer.
// It reports whether the packet carried a combination that wasn't known before.
// After a useful packet, NextDelivered should be called until it returns 0.
func (c *Coder) Ingest(b []byte) (bool, error) {
	if err := c.usable(); err != nil {
		return false, err
	}
	p, err := wire.ParsePacket(b, c.datagramSize)
	if err != nil {
		c.stats.MalformedPackets++
		return false, err
	}
	c.stats.PacketsReceived++

	if released := c.tx.ack(p.Header.FirstUnseen, p.Header.WindowSize); released > 0 {
		c.stats.DatagramsReleased += uint64(released)
		if c.logger.Debug() {
			c.logger.Debugf("peer acknowledged %d datagrams, window start %d", released, c.tx.windowStart)
		}
	}
	if p.Type == protocol.PacketTypeAck {
		return false, nil
	}

	in := codedPacket{
		seq:         p.Header.Seq,
		combination: p.Header.Combination,
		payload:     c.pool.get(),
	}
	copy(in.payload, p.Payload)
	useful, err := c.rx.combine(&in)
	if err != nil {
		c.pool.put(in.payload)
		c.err = err
		c.logger.Errorf("%s", err)
		return false, err
	}
	if !useful {
		c.pool.put(in.payload)
		c.stats.UselessPackets++
	}
	if c.logger.Debug() {
		c.logger.Debugf("<- %s, useful: %t", &p.Header, useful)
	}
	c.rx.advanceWindow(p.Header.Seq)
	return useful, nil
}

// NextDelivered copies the next decoded datagram into b.
// It returns 0 if the next datagram in order isn't decoded yet.
func (c *Coder) NextDelivered(b []byte) (int, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}
	n, err := c.rx.nextDelivered(b)
	if n > 0 {
		c.stats.DatagramsDelivered++
	}
	return n, err
}

// Close releases all buffers. The coder can't be used afterwards.
func (c *Coder) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.tx.freeAll()
	c.rx.freeAll()
	return nil
}

// Stats returns the counters.
func (c *Coder) Stats() Stats {
	return c.stats
}

// TxWindow returns a snapshot of the send direction.
func (c *Coder) TxWindow() Window {
	return c.tx.snapshot()
}

// RxWindow returns a snapshot of the receive direction.
func (c *Coder) RxWindow() Window {
	return c.rx.snapshot()
}

// Dump writes the stored units of both directions to w.
func (c *Coder) Dump(w io.Writer) error {
	for _, d := range []struct {
		name string
		h    *half
	}{{"tx", c.tx}, {"rx", c.rx}} {
		if _, err := fmt.Fprintf(w, "%s: start %d, window %d, deliver next %d, %d/%d slots used\n",
			d.name, d.h.windowStart, d.h.windowSize, d.h.deliverNext, d.h.queueSize, d.h.capacity()); err != nil {
			return err
		}
		for i := range d.h.packets {
			p := &d.h.packets[i]
			if p.empty() {
				continue
			}
			prefix := p.payload
			if len(prefix) > 8 {
				prefix = prefix[:8]
			}
			if _, err := fmt.Fprintf(w, "  [%2d] seq %3d mask %08x %032b %s\n",
				i, p.seq, p.combination, p.combination, hex.EncodeToString(prefix)); err != nil {
				return err
			}
		}
	}
	return nil
}
