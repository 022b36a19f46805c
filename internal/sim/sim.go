// Package sim runs two coders against each other over a simulated lossy line.
// Everything is driven by a round counter and seeded generators, so a run is reproducible.
package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/overlaymesh/rlnc/internal/nc"
	"github.com/overlaymesh/rlnc/internal/protocol"
	"github.com/overlaymesh/rlnc/internal/utils"
	"github.com/overlaymesh/rlnc/internal/utils/ringbuffer"
	"github.com/overlaymesh/rlnc/internal/wire"
	"github.com/overlaymesh/rlnc/logging"

	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// ErrIncomplete is returned if not all datagrams were delivered within MaxRounds.
var ErrIncomplete = errors.New("simulation incomplete")

// Config configures a simulation.
type Config struct {
	// Datagrams is the number of datagrams sent from the sender to the receiver.
	Datagrams int
	// DatagramSize is the size of each datagram.
	DatagramSize int
	// MaxWindowSize is used for both coders.
	MaxWindowSize int
	// MaxRounds limits the run. In every round, each coder produces one packet.
	MaxRounds int
	// Latency is the number of rounds between producing and receiving a packet.
	Latency int
	// LossRate is the probability of losing a data packet.
	LossRate float64
	// AckLossRate is the probability of losing a packet sent by the receiver.
	AckLossRate float64
	// Seed seeds the coders and the loss generators.
	Seed uint64
	// Tracer, if set, traces the sender.
	Tracer *logging.ConnectionTracer
}

// DefaultConfig mirrors the long-running loss test: 1/8 loss in both directions, 3 rounds of latency.
func DefaultConfig() Config {
	return Config{
		Datagrams:     10000,
		DatagramSize:  200,
		MaxWindowSize: protocol.MaxWindowSize,
		MaxRounds:     1000000,
		Latency:       3,
		LossRate:      0.125,
		AckLossRate:   0.125,
		Seed:          1,
	}
}

func (c *Config) validate() error {
	if c.Datagrams <= 0 {
		return fmt.Errorf("invalid number of datagrams: %d", c.Datagrams)
	}
	if c.DatagramSize < 4 {
		return fmt.Errorf("invalid datagram size %d: must be at least 4", c.DatagramSize)
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("invalid number of rounds: %d", c.MaxRounds)
	}
	if c.Latency < 0 {
		return fmt.Errorf("invalid latency: %d", c.Latency)
	}
	if c.LossRate < 0 || c.LossRate > 1 || c.AckLossRate < 0 || c.AckLossRate > 1 {
		return fmt.Errorf("invalid loss rate: %f / %f", c.LossRate, c.AckLossRate)
	}
	return nil
}

// A Bucket counts how often a useful packet released Length datagrams at once.
type Bucket struct {
	Length int `json:"length" yaml:"length"`
	Count  int `json:"count" yaml:"count"`
}

// Result is the outcome of a simulation.
type Result struct {
	Rounds      int `json:"rounds" yaml:"rounds"`
	Delivered   int `json:"delivered" yaml:"delivered"`
	PacketsSent int `json:"packets_sent" yaml:"packets_sent"`
	Received    int `json:"received" yaml:"received"`
	Dropped     int `json:"dropped" yaml:"dropped"`
	AcksDropped int `json:"acks_dropped" yaml:"acks_dropped"`
	// Useless is the number of received packets that didn't carry new information.
	Useless int `json:"useless" yaml:"useless"`
	// Histogram is sorted by burst length.
	Histogram     []Bucket `json:"histogram" yaml:"histogram"`
	BurstMean     float64  `json:"burst_mean" yaml:"burst_mean"`
	BurstStdDev   float64  `json:"burst_stddev" yaml:"burst_stddev"`
	SenderStats   nc.Stats `json:"sender" yaml:"sender"`
	ReceiverStats nc.Stats `json:"receiver" yaml:"receiver"`
}

// Efficiency is the share of received data packets that delivered a datagram.
func (r *Result) Efficiency() float64 {
	if r.Received == 0 {
		return 0
	}
	return float64(r.Delivered) / float64(r.Received)
}

type inflightPacket struct {
	due  int
	data []byte
}

// A line delays packets by a fixed number of rounds and loses some of them.
type line struct {
	latency  int
	lossRate float64
	rand     *rand.Rand
	packets  ringbuffer.RingBuffer[inflightPacket]
	dropped  int
}

func newLine(latency int, lossRate float64, seed uint64) *line {
	l := &line{
		latency:  latency,
		lossRate: lossRate,
		rand:     rand.New(rand.NewSource(seed)),
	}
	l.packets.Init(latency + 1)
	return l
}

// send returns false if the packet was lost.
func (l *line) send(round int, p []byte) bool {
	if l.rand.Float64() < l.lossRate {
		l.dropped++
		return false
	}
	data := make([]byte, len(p))
	copy(data, p)
	l.packets.PushBack(inflightPacket{due: round + l.latency, data: data})
	return true
}

// receive returns the next packet due in this round, or nil.
func (l *line) receive(round int) []byte {
	if l.packets.Empty() || l.packets.PeekFront().due > round {
		return nil
	}
	return l.packets.PopFront().data
}

func packetHeader(data []byte, datagramSize int) *logging.PacketHeader {
	p, err := wire.ParsePacket(data, datagramSize)
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

// Datagram returns the content of the i-th datagram.
func Datagram(i, size int) []byte {
	d := make([]byte, size)
	binary.BigEndian.PutUint32(d, uint32(i))
	x := uint32(i)*2654435761 + 1
	for j := 4; j < size; j++ {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		d[j] = byte(x)
	}
	return d
}

// Run runs a simulation.
// It returns ErrIncomplete, along with the result, if the datagrams weren't all delivered in time.
func Run(ctx context.Context, conf Config) (*Result, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	logger := utils.DefaultLogger.WithPrefix("sim")
	sender, err := nc.New(conf.MaxWindowSize, conf.DatagramSize,
		nc.WithRand(rand.New(rand.NewSource(conf.Seed))),
		nc.WithLogger(logger.WithPrefix("sender")),
	)
	if err != nil {
		return nil, err
	}
	defer sender.Close()
	receiver, err := nc.New(conf.MaxWindowSize, conf.DatagramSize,
		nc.WithRand(rand.New(rand.NewSource(conf.Seed+1))),
		nc.WithLogger(logger.WithPrefix("receiver")),
	)
	if err != nil {
		return nil, err
	}
	defer receiver.Close()

	forward := newLine(conf.Latency, conf.LossRate, conf.Seed+2)
	reverse := newLine(conf.Latency, conf.AckLossRate, conf.Seed+3)
	tracer := conf.Tracer
	if tracer == nil {
		tracer = &logging.ConnectionTracer{}
	}

	var (
		res       Result
		enqueued  int
		histogram = make(map[int]int)
	)
	buf := make([]byte, sender.PacketSize())
	out := make([]byte, conf.DatagramSize)

	for res.Rounds = 0; res.Delivered < conf.Datagrams && res.Rounds < conf.MaxRounds; res.Rounds++ {
		if res.Rounds%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for enqueued < conf.Datagrams && sender.HasRoom() {
			if err := sender.Enqueue(Datagram(enqueued, conf.DatagramSize)); err != nil {
				return nil, err
			}
			enqueued++
		}

		// one packet in each direction
		n, err := sender.ProducePacket(buf)
		if err != nil {
			return nil, err
		}
		if tracer.SentPacket != nil {
			tracer.SentPacket(packetHeader(buf[:n], conf.DatagramSize), n)
		}
		if n > protocol.AckFrameLen {
			res.PacketsSent++
		}
		if !forward.send(res.Rounds, buf[:n]) && tracer.DroppedPacket != nil {
			tracer.DroppedPacket(n, logging.PacketDropLinkLoss)
		}
		n, err = receiver.ProducePacket(buf)
		if err != nil {
			return nil, err
		}
		if !reverse.send(res.Rounds, buf[:n]) && tracer.DroppedPacket != nil {
			tracer.DroppedPacket(n, logging.PacketDropLinkLoss)
		}

		for p := reverse.receive(res.Rounds); p != nil; p = reverse.receive(res.Rounds) {
			released := sender.Stats().DatagramsReleased
			if _, err := sender.Ingest(p); err != nil {
				return nil, err
			}
			if tracer.ReceivedPacket != nil {
				tracer.ReceivedPacket(packetHeader(p, conf.DatagramSize), len(p), false)
			}
			if n := sender.Stats().DatagramsReleased - released; n > 0 && tracer.AcknowledgedDatagrams != nil {
				tracer.AcknowledgedDatagrams(int(n), sender.TxWindow().Start)
			}
		}
		for p := forward.receive(res.Rounds); p != nil; p = forward.receive(res.Rounds) {
			useful, err := receiver.Ingest(p)
			if err != nil {
				return nil, err
			}
			if len(p) == protocol.AckFrameLen {
				continue
			}
			res.Received++
			if !useful {
				res.Useless++
				continue
			}
			var burst int
			for {
				n, err := receiver.NextDelivered(out)
				if err != nil {
					return nil, err
				}
				if n == 0 {
					break
				}
				if expected := Datagram(res.Delivered, conf.DatagramSize); string(out[:n]) != string(expected) {
					return nil, fmt.Errorf("datagram %d delivered out of order or corrupted", res.Delivered)
				}
				res.Delivered++
				burst++
			}
			histogram[burst]++
		}
		if logger.Debug() && res.Rounds%1000 == 0 {
			logger.Debugf("round %d: delivered %d of %d datagrams", res.Rounds, res.Delivered, conf.Datagrams)
		}
	}

	res.Dropped = forward.dropped
	res.AcksDropped = reverse.dropped
	res.SenderStats = sender.Stats()
	res.ReceiverStats = receiver.Stats()
	res.Histogram = make([]Bucket, 0, len(histogram))
	for l, c := range histogram {
		res.Histogram = append(res.Histogram, Bucket{Length: l, Count: c})
	}
	slices.SortFunc(res.Histogram, func(a, b Bucket) bool { return a.Length < b.Length })
	if len(res.Histogram) > 0 {
		lengths := make([]float64, len(res.Histogram))
		weights := make([]float64, len(res.Histogram))
		for i, b := range res.Histogram {
			lengths[i] = float64(b.Length)
			weights[i] = float64(b.Count)
		}
		res.BurstMean, res.BurstStdDev = stat.MeanStdDev(lengths, weights)
	}
	logger.Infof("Delivered %d of %d datagrams in %d rounds (%d useless packets)", res.Delivered, conf.Datagrams, res.Rounds, res.Useless)
	if res.Delivered < conf.Datagrams {
		return &res, fmt.Errorf("%w: delivered %d of %d datagrams in %d rounds", ErrIncomplete, res.Delivered, conf.Datagrams, res.Rounds)
	}
	return &res, nil
}
