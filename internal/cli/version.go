package cli

import (
	"fmt"

	"github.com/overlaymesh/rlnc/internal/protocol"

	"github.com/spf13/cobra"
)

// ncsimVersion is set at build time via -ldflags "-X github.com/overlaymesh/rlnc/internal/cli.ncsimVersion=x.y.z"
var ncsimVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the ncsim version and wire format parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "ncsim version %s\n", ncsimVersion)
		fmt.Fprintf(cmd.OutOrStdout(), "wire format: %d byte header, %d byte ack frame, windows up to %d datagrams\n",
			protocol.HeaderLen, protocol.AckFrameLen, protocol.MaxWindowSize)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
