package rlnc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/overlaymesh/rlnc/internal/nc"
	"github.com/overlaymesh/rlnc/internal/protocol"
	"github.com/overlaymesh/rlnc/internal/utils"
	"github.com/overlaymesh/rlnc/internal/wire"
	"github.com/overlaymesh/rlnc/logging"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ConnectionStats are the counters of a Conn.
type ConnectionStats struct {
	CoderStats
	// IncomingDropped is the number of packets dropped because the event loop fell behind.
	IncomingDropped uint64
}

type receivedPacket struct {
	buffer *wire.PacketBuffer
	data   []byte
}

// A Conn delivers datagrams reliably and in order over a lossy Link.
type Conn struct {
	link   Link
	config *Config

	// only accessed by the event loop
	coder *nc.Coder

	sendQueue    *sendQueue
	receiveQueue *receiveQueue
	incoming     chan receivedPacket
	notifySend   chan struct{}
	notifyRecv   chan struct{}
	limiter      *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeMx  sync.Mutex
	closeErr error

	statsMx         sync.Mutex
	stats           CoderStats
	incomingDropped atomic.Uint64

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

// NewConn starts a connection over link. Both endpoints must use the same DatagramSize.
// The Conn takes ownership of the link and closes it when done.
func NewConn(link Link, config *Config) (*Conn, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = populateConfig(config)

	seed := config.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger := utils.DefaultLogger.WithPrefix("conn")
	coder, err := nc.New(
		config.MaxWindowSize,
		config.DatagramSize,
		nc.WithRand(rand.New(rand.NewSource(seed))),
		nc.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	c := &Conn{
		link:       link,
		config:     config,
		coder:      coder,
		incoming:   make(chan receivedPacket, maxIncomingPackets),
		notifySend: make(chan struct{}, 1),
		notifyRecv: make(chan struct{}, 1),
		limiter:    rate.NewLimiter(rate.Limit(config.PacketRate), config.PacketBurst),
		logger:     logger,
	}
	c.sendQueue = newSendQueue(config.MaxQueuedDatagrams, func() { notify(c.notifySend) })
	c.receiveQueue = newReceiveQueue(config.MaxReceiveQueue, func() { notify(c.notifyRecv) })
	if config.Tracer != nil {
		c.tracer = config.Tracer()
	}
	if c.tracer != nil && c.tracer.StartedConnection != nil {
		var local, remote net.Addr
		if a, ok := link.(addressedLink); ok {
			local, remote = a.LocalAddr(), a.RemoteAddr()
		}
		c.tracer.StartedConnection(local, remote)
	}

	var ctx context.Context
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.group, ctx = errgroup.WithContext(c.ctx)
	c.group.Go(func() error { return c.readLoop(ctx) })
	c.group.Go(func() error { return c.run(ctx) })
	c.group.Go(func() error {
		<-ctx.Done()
		c.shutdown()
		return nil
	})
	return c, nil
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// SendDatagram queues a copy of d for sending.
// It blocks while the send queue is full.
func (c *Conn) SendDatagram(ctx context.Context, d []byte) error {
	if len(d) != c.config.DatagramSize {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrDatagramSize, len(d), c.config.DatagramSize)
	}
	b := make([]byte, len(d))
	copy(b, d)
	return c.sendQueue.Add(ctx, b)
}

// DatagramSize is the size of every datagram sent and received.
func (c *Conn) DatagramSize() int {
	return c.config.DatagramSize
}

// ReceiveDatagram returns the next datagram sent by the peer.
func (c *Conn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return c.receiveQueue.Receive(ctx)
}

// Stats returns a snapshot of the counters.
func (c *Conn) Stats() ConnectionStats {
	c.statsMx.Lock()
	defer c.statsMx.Unlock()
	return ConnectionStats{
		CoderStats:      c.stats,
		IncomingDropped: c.incomingDropped.Load(),
	}
}

// Done is closed when the connection terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close terminates the connection.
// It returns the error that terminated the connection before, if any.
func (c *Conn) Close() error {
	c.setCloseError(ErrConnClosed)
	c.cancel()
	return c.group.Wait()
}

func (c *Conn) setCloseError(e error) {
	c.closeMx.Lock()
	defer c.closeMx.Unlock()
	if c.closeErr == nil {
		c.closeErr = e
	}
}

func (c *Conn) closeError() error {
	c.closeMx.Lock()
	defer c.closeMx.Unlock()
	if c.closeErr == nil {
		return ErrConnClosed
	}
	return c.closeErr
}

func (c *Conn) shutdown() {
	c.cancel()
	err := c.closeError()
	if err := c.link.Close(); err != nil {
		c.logger.Errorf("Closing link failed: %s", err)
	}
	c.sendQueue.CloseWithError(err)
	c.receiveQueue.CloseWithError(err)
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		buf := wire.GetPacketBuffer()
		n, err := c.link.ReadPacket(buf.Data)
		if err != nil {
			wire.PutPacketBuffer(buf)
			if ctx.Err() != nil {
				return nil
			}
			err = fmt.Errorf("reading from link: %w", err)
			c.setCloseError(err)
			return err
		}
		select {
		case c.incoming <- receivedPacket{buffer: buf, data: buf.Data[:n]}:
		default:
			wire.PutPacketBuffer(buf)
			c.incomingDropped.Add(1)
			if c.tracer != nil && c.tracer.DroppedPacket != nil {
				c.tracer.DroppedPacket(n, logging.PacketDropReceiveQueueFull)
			}
		}
	}
}

// run is the event loop. It is the only goroutine using the coder.
func (c *Conn) run(ctx context.Context) (err error) {
	defer func() {
		c.coder.Close()
		if c.tracer != nil {
			if c.tracer.ClosedConnection != nil {
				if err != nil {
					c.tracer.ClosedConnection(err)
				} else {
					c.tracer.ClosedConnection(c.closeError())
				}
			}
			if c.tracer.Close != nil {
				c.tracer.Close()
			}
		}
	}()

	sendBuf := make([]byte, c.coder.PacketSize())
	recvBuf := make([]byte, c.config.DatagramSize)
	pacingTimer := time.NewTimer(time.Hour)
	pacingTimer.Stop()
	defer pacingTimer.Stop()
	// While the peer may still believe our receive window is closed,
	// the persist timer repeats the ack whenever no coded packet arrived for a while.
	persistTimer := time.NewTimer(time.Hour)
	persistTimer.Stop()
	defer persistTimer.Stop()
	var (
		reservation     *rate.Reservation
		ackPending      bool
		advertised      = -1
		persisting      bool
		persistInterval time.Duration
	)
	defer func() {
		if reservation != nil {
			reservation.Cancel()
		}
	}()

	for {
		c.fillCoder()
		if c.deliver(recvBuf) {
			ackPending = true
		}
		c.updateStats()

		// Don't send ack frames at full rate while the peer's window is closed.
		canSend := c.coder.QueueLen() > 0 && c.coder.SendWindow() > 0
		if reservation == nil && (canSend || ackPending) {
			reservation = c.limiter.Reserve()
			pacingTimer.Reset(reservation.Delay())
		}

		select {
		case <-ctx.Done():
			return nil
		case p := <-c.incoming:
			coded, err := c.handlePacket(p.data)
			wire.PutPacketBuffer(p.buffer)
			if err != nil {
				c.setCloseError(err)
				c.logger.Errorf("Closing connection: %s", err)
				return err
			}
			if coded {
				ackPending = true
				if persisting {
					persistInterval = c.minPersistInterval()
					persistTimer.Reset(persistInterval)
				}
			}
		case <-c.notifySend:
		case <-c.notifyRecv:
		case <-persistTimer.C:
			if persisting {
				ackPending = true
				persistInterval = min(2*persistInterval, maxPersistInterval)
				persistTimer.Reset(persistInterval)
			}
		case <-pacingTimer.C:
			reservation = nil
			window, err := c.sendPacket(sendBuf)
			ackPending = false
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				c.logger.Debugf("Sending packet failed: %s", err)
				continue
			}
			switch {
			case window == 0 && advertised != 0:
				persisting = false
				persistTimer.Stop()
				c.traceDebug("receive_window_closed", "advertised window 0")
			case window > 0 && advertised == 0:
				persisting = true
				persistInterval = c.minPersistInterval()
				persistTimer.Reset(persistInterval)
				c.traceDebug("receive_window_reopened", fmt.Sprintf("advertised window %d", window))
			}
			advertised = window
		}
	}
}

// minPersistInterval is the time without coded packets after which a reopened window is advertised again.
func (c *Conn) minPersistInterval() time.Duration {
	d := time.Duration(float64(time.Second) * persistPackets / c.config.PacketRate)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func (c *Conn) traceDebug(name, msg string) {
	if c.logger.Debug() {
		c.logger.Debugf("%s: %s", name, msg)
	}
	if c.tracer != nil && c.tracer.Debug != nil {
		c.tracer.Debug(name, msg)
	}
}

// fillCoder moves queued datagrams into the send window.
func (c *Conn) fillCoder() {
	for c.coder.HasRoom() {
		d := c.sendQueue.Peek()
		if d == nil {
			return
		}
		if err := c.coder.Enqueue(d); err != nil {
			c.logger.Errorf("Enqueueing datagram failed: %s", err)
			return
		}
		c.sendQueue.Pop()
	}
}

// deliver moves decoded datagrams to the receive queue, as long as it has room.
// It reports whether any datagram was delivered.
func (c *Conn) deliver(buf []byte) bool {
	var delivered bool
	for c.receiveQueue.HasRoom() {
		n, err := c.coder.NextDelivered(buf)
		if err != nil || n == 0 {
			break
		}
		d := make([]byte, n)
		copy(d, buf[:n])
		c.receiveQueue.Add(d)
		delivered = true
		if c.tracer != nil && c.tracer.DeliveredDatagram != nil {
			c.tracer.DeliveredDatagram(n)
		}
	}
	return delivered
}

// handlePacket feeds a packet to the coder.
// It reports whether the packet carried a combination.
func (c *Conn) handlePacket(data []byte) (bool, error) {
	released := c.coder.Stats().DatagramsReleased
	useful, err := c.coder.Ingest(data)
	if err != nil {
		if errors.Is(err, wire.ErrMalformedPacket) {
			if c.logger.Debug() {
				c.logger.Debugf("Dropping malformed packet: %s", err)
			}
			if c.tracer != nil && c.tracer.DroppedPacket != nil {
				c.tracer.DroppedPacket(len(data), logging.PacketDropMalformed)
			}
			return false, nil
		}
		return false, err
	}
	coded := len(data) != protocol.AckFrameLen
	if c.tracer != nil {
		if c.tracer.ReceivedPacket != nil {
			c.tracer.ReceivedPacket(c.packetHeader(data), len(data), useful)
		}
		if n := c.coder.Stats().DatagramsReleased - released; n > 0 && c.tracer.AcknowledgedDatagrams != nil {
			c.tracer.AcknowledgedDatagrams(int(n), c.coder.TxWindow().Start)
		}
	}
	return coded, nil
}

// sendPacket sends the next packet and returns the receive window advertised in it.
func (c *Conn) sendPacket(buf []byte) (int, error) {
	n, err := c.coder.ProducePacket(buf)
	if err != nil {
		return 0, err
	}
	hdr := c.packetHeader(buf[:n])
	if c.tracer != nil && c.tracer.SentPacket != nil {
		c.tracer.SentPacket(hdr, n)
	}
	return int(hdr.WindowSize), c.link.WritePacket(buf[:n])
}

func (c *Conn) packetHeader(data []byte) *logging.PacketHeader {
	p, err := wire.ParsePacket(data, c.config.DatagramSize)
	if err != nil {
		return &logging.PacketHeader{}
	}
	return &logging.PacketHeader{
		Type:        p.Type,
		FirstUnseen: p.Header.FirstUnseen,
		WindowSize:  p.Header.WindowSize,
		Seq:         p.Header.Seq,
		Combination: p.Header.Combination,
	}
}

func (c *Conn) updateStats() {
	s := c.coder.Stats()
	c.statsMx.Lock()
	c.stats = s
	c.statsMx.Unlock()
}
