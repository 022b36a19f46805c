// Package cli implements the ncsim command line tool.
package cli

import (
	"fmt"
	"os"

	"github.com/overlaymesh/rlnc/internal/cli/config"
	"github.com/overlaymesh/rlnc/internal/cli/output"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	qlogDir      string

	// Shared state set during PersistentPreRun
	cfg       *config.Config
	formatter output.Formatter
)

// rootCmd is the base command for ncsim.
var rootCmd = &cobra.Command{
	Use:   "ncsim",
	Short: "Network coded datagram links: simulate them, or run one over UDP",
	Long: `ncsim exercises the random linear network coding link.
It simulates two coders over a lossy line and reports how many packets were needed,
or connects to a peer over UDP and streams stdin to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if outputFormat != "" {
			cfg.OutputFormat = outputFormat
		}
		if qlogDir != "" {
			cfg.QlogDir = qlogDir
		}
		formatter = output.NewFormatter(cfg.OutputFormat)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.rlnc/ncsim.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json, yaml (default \"table\")")
	rootCmd.PersistentFlags().StringVar(&qlogDir, "qlog-dir", "", "write qlog traces to this directory")
}
