package cli

import (
	"fmt"

	"github.com/overlaymesh/rlnc/internal/cli/output"
	"github.com/overlaymesh/rlnc/internal/sim"
	"github.com/overlaymesh/rlnc/qlog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var simFlags struct {
	datagrams    int
	datagramSize int
	window       int
	rounds       int
	latency      int
	loss         float64
	ackLoss      float64
	seed         uint64
}

// simulationSummary is the table rendering of a sim.Result.
type simulationSummary struct {
	Delivered   int
	Rounds      int
	PacketsSent int
	Received    int
	Dropped     int
	AcksDropped int
	Useless     int
	Efficiency  string
	BurstMean   string
	BurstStdDev string
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run two coders against each other over a simulated lossy line",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf := simulationConfig(cmd)
		if cfg.QlogDir != "" {
			tracer, err := qlog.NewFileConnectionTracer(cfg.QlogDir, "simulation")
			if err != nil {
				return errors.Wrap(err, "creating qlog trace")
			}
			defer tracer.Close()
			conf.Tracer = tracer
		}

		res, runErr := sim.Run(cmd.Context(), conf)
		if res == nil {
			return errors.Wrap(runErr, "simulation failed")
		}
		out := cmd.OutOrStdout()
		if formatter.Structured() {
			fmt.Fprint(out, formatter.Format(res))
			return runErr
		}
		fmt.Fprint(out, output.Title("Simulation"))
		fmt.Fprint(out, formatter.Format(&simulationSummary{
			Delivered:   res.Delivered,
			Rounds:      res.Rounds,
			PacketsSent: res.PacketsSent,
			Received:    res.Received,
			Dropped:     res.Dropped,
			AcksDropped: res.AcksDropped,
			Useless:     res.Useless,
			Efficiency:  fmt.Sprintf("%.3f", res.Efficiency()),
			BurstMean:   fmt.Sprintf("%.3f", res.BurstMean),
			BurstStdDev: fmt.Sprintf("%.3f", res.BurstStdDev),
		}))
		fmt.Fprint(out, output.Title("Delivery bursts"))
		fmt.Fprint(out, formatter.Format(res.Histogram))
		return runErr
	},
}

// simulationConfig merges the config file with the flags that were set.
func simulationConfig(cmd *cobra.Command) sim.Config {
	s := cfg.Simulation
	conf := sim.Config{
		Datagrams:     s.Datagrams,
		DatagramSize:  s.DatagramSize,
		MaxWindowSize: s.MaxWindowSize,
		MaxRounds:     s.MaxRounds,
		Latency:       s.Latency,
		LossRate:      s.LossRate,
		AckLossRate:   s.AckLossRate,
		Seed:          s.Seed,
	}
	flags := cmd.Flags()
	if flags.Changed("datagrams") {
		conf.Datagrams = simFlags.datagrams
	}
	if flags.Changed("datagram-size") {
		conf.DatagramSize = simFlags.datagramSize
	}
	if flags.Changed("window") {
		conf.MaxWindowSize = simFlags.window
	}
	if flags.Changed("rounds") {
		conf.MaxRounds = simFlags.rounds
	}
	if flags.Changed("latency") {
		conf.Latency = simFlags.latency
	}
	if flags.Changed("loss") {
		conf.LossRate = simFlags.loss
	}
	if flags.Changed("ack-loss") {
		conf.AckLossRate = simFlags.ackLoss
	}
	if flags.Changed("seed") {
		conf.Seed = simFlags.seed
	}
	return conf
}

// addSimulationFlags registers the flags read by simulationConfig.
func addSimulationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&simFlags.datagrams, "datagrams", 10000, "number of datagrams to deliver")
	f.IntVar(&simFlags.datagramSize, "datagram-size", 200, "size of each datagram")
	f.IntVar(&simFlags.window, "window", 32, "maximum window size (power of two, at most 32)")
	f.IntVar(&simFlags.rounds, "rounds", 1000000, "maximum number of rounds")
	f.IntVar(&simFlags.latency, "latency", 3, "rounds between sending and receiving a packet")
	f.Float64Var(&simFlags.loss, "loss", 0.125, "loss rate of data packets")
	f.Float64Var(&simFlags.ackLoss, "ack-loss", 0.125, "loss rate of acknowledgements")
	f.Uint64Var(&simFlags.seed, "seed", 1, "random seed")
}

func init() {
	addSimulationFlags(simulateCmd)
	rootCmd.AddCommand(simulateCmd)
}
