package sim

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/exp/rand"
)

// BlockConfig configures a run of the block FEC baseline.
// Blocks of SourceShards datagrams are protected by RepairShards Reed-Solomon parity shards,
// and sent once over a lossy line without any feedback.
type BlockConfig struct {
	Datagrams    int
	DatagramSize int
	SourceShards int
	RepairShards int
	LossRate     float64
	Seed         uint64
}

// BlockResult is the outcome of a block FEC run.
type BlockResult struct {
	Blocks          int `json:"blocks" yaml:"blocks"`
	BlocksRecovered int `json:"blocks_recovered" yaml:"blocks_recovered"`
	BlocksLost      int `json:"blocks_lost" yaml:"blocks_lost"`
	PacketsSent     int `json:"packets_sent" yaml:"packets_sent"`
	Dropped         int `json:"dropped" yaml:"dropped"`
	// Delivered counts datagrams received directly or reconstructed.
	Delivered int `json:"delivered" yaml:"delivered"`
	Recovered int `json:"recovered" yaml:"recovered"`
	Lost      int `json:"lost" yaml:"lost"`
}

// ResidualLoss is the share of datagrams that couldn't be delivered.
func (r *BlockResult) ResidualLoss() float64 {
	if r.Delivered+r.Lost == 0 {
		return 0
	}
	return float64(r.Lost) / float64(r.Delivered+r.Lost)
}

// A block holds the shards of one block as they arrive.
// Lost shards are nil.
type block struct {
	shards    [][]byte
	numSource int
	present   int
}

func newBlock(numSource, numRepair int) *block {
	return &block{
		shards:    make([][]byte, numSource+numRepair),
		numSource: numSource,
	}
}

func (b *block) addShard(i int, data []byte) {
	if b.shards[i] == nil {
		b.present++
	}
	b.shards[i] = data
}

// isRecoverable indicates whether the block contains enough shards to repair missing source shards.
func (b *block) isRecoverable() bool {
	return b.present >= b.numSource
}

// isComplete indicates whether the block contains all of its source shards.
func (b *block) isComplete() bool {
	for _, s := range b.shards[:b.numSource] {
		if s == nil {
			return false
		}
	}
	return true
}

func (c *BlockConfig) validate() error {
	if c.Datagrams <= 0 {
		return fmt.Errorf("invalid number of datagrams: %d", c.Datagrams)
	}
	if c.DatagramSize < 4 {
		return fmt.Errorf("invalid datagram size %d: must be at least 4", c.DatagramSize)
	}
	if c.LossRate < 0 || c.LossRate > 1 {
		return fmt.Errorf("invalid loss rate: %f", c.LossRate)
	}
	return nil
}

// RunBlockFEC sends conf.Datagrams datagrams with block FEC, for comparison with the network coded link.
func RunBlockFEC(ctx context.Context, conf BlockConfig) (*BlockResult, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(conf.SourceShards, conf.RepairShards)
	if err != nil {
		return nil, fmt.Errorf("creating Reed-Solomon encoder: %w", err)
	}
	r := rand.New(rand.NewSource(conf.Seed))

	var res BlockResult
	for first := 0; first < conf.Datagrams; first += conf.SourceShards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Blocks++
		// the last block is padded with empty datagrams
		numReal := conf.Datagrams - first
		if numReal > conf.SourceShards {
			numReal = conf.SourceShards
		}

		shards := make([][]byte, conf.SourceShards+conf.RepairShards)
		for i := range shards {
			if i < numReal {
				shards[i] = Datagram(first+i, conf.DatagramSize)
			} else {
				shards[i] = make([]byte, conf.DatagramSize)
			}
		}
		if err := enc.Encode(shards); err != nil {
			return nil, fmt.Errorf("unable to make parity shards: %w", err)
		}

		b := newBlock(conf.SourceShards, conf.RepairShards)
		for i, s := range shards {
			if i >= numReal && i < conf.SourceShards {
				// padding is known to the receiver
				b.addShard(i, s)
				continue
			}
			res.PacketsSent++
			if r.Float64() < conf.LossRate {
				res.Dropped++
				continue
			}
			b.addShard(i, append([]byte(nil), s...))
		}

		switch {
		case b.isComplete():
			res.Delivered += numReal
		case b.isRecoverable():
			var missing []int
			for i := 0; i < numReal; i++ {
				if b.shards[i] == nil {
					missing = append(missing, i)
				}
			}
			if err := enc.ReconstructData(b.shards); err != nil {
				return nil, fmt.Errorf("reconstructing block %d: %w", res.Blocks-1, err)
			}
			for _, i := range missing {
				if !bytes.Equal(b.shards[i], shards[i]) {
					return nil, fmt.Errorf("datagram %d reconstructed incorrectly", first+i)
				}
			}
			res.BlocksRecovered++
			res.Recovered += len(missing)
			res.Delivered += numReal
		default:
			res.BlocksLost++
			for i := 0; i < numReal; i++ {
				if b.shards[i] != nil {
					res.Delivered++
				} else {
					res.Lost++
				}
			}
		}
	}
	return &res, nil
}
