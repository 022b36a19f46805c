package cli

import (
	"fmt"

	"github.com/overlaymesh/rlnc/internal/cli/output"
	"github.com/overlaymesh/rlnc/internal/sim"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var blockFECFlags struct {
	source int
	repair int
}

type blockFECSummary struct {
	Blocks          int
	BlocksRecovered int
	BlocksLost      int
	PacketsSent     int
	Dropped         int
	Delivered       int
	Recovered       int
	Lost            int
	ResidualLoss    string
}

var blockFECCmd = &cobra.Command{
	Use:   "blockfec",
	Short: "Send the simulated datagrams with Reed-Solomon block FEC instead, for comparison",
	Long: `blockfec protects blocks of datagrams with Reed-Solomon parity shards and sends each
block once over a lossy line. Unlike the network coded link, there is no feedback,
so blocks with too many losses can't be delivered completely.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		simConf := simulationConfig(cmd)
		conf := sim.BlockConfig{
			Datagrams:    simConf.Datagrams,
			DatagramSize: simConf.DatagramSize,
			SourceShards: cfg.BlockFEC.SourceShards,
			RepairShards: cfg.BlockFEC.RepairShards,
			LossRate:     simConf.LossRate,
			Seed:         simConf.Seed,
		}
		if cmd.Flags().Changed("source") {
			conf.SourceShards = blockFECFlags.source
		}
		if cmd.Flags().Changed("repair") {
			conf.RepairShards = blockFECFlags.repair
		}

		res, err := sim.RunBlockFEC(cmd.Context(), conf)
		if err != nil {
			return errors.Wrap(err, "block FEC run failed")
		}
		out := cmd.OutOrStdout()
		if formatter.Structured() {
			fmt.Fprint(out, formatter.Format(res))
			return nil
		}
		fmt.Fprint(out, output.Title(fmt.Sprintf("Reed-Solomon (%d, %d)", conf.SourceShards, conf.RepairShards)))
		fmt.Fprint(out, formatter.Format(&blockFECSummary{
			Blocks:          res.Blocks,
			BlocksRecovered: res.BlocksRecovered,
			BlocksLost:      res.BlocksLost,
			PacketsSent:     res.PacketsSent,
			Dropped:         res.Dropped,
			Delivered:       res.Delivered,
			Recovered:       res.Recovered,
			Lost:            res.Lost,
			ResidualLoss:    fmt.Sprintf("%.4f", res.ResidualLoss()),
		}))
		return nil
	},
}

func init() {
	f := blockFECCmd.Flags()
	f.IntVar(&blockFECFlags.source, "source", 8, "source shards per block")
	f.IntVar(&blockFECFlags.repair, "repair", 2, "repair shards per block")
	addSimulationFlags(blockFECCmd)
	rootCmd.AddCommand(blockFECCmd)
}
