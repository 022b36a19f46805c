// Package config loads the ncsim configuration file.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the ncsim configuration.
// Command line flags take precedence over the values read from the file.
type Config struct {
	OutputFormat string `yaml:"output_format" json:"output_format"`
	// QlogDir is the directory qlog traces are written to. Tracing is off if empty.
	QlogDir    string     `yaml:"qlog_dir" json:"qlog_dir"`
	Simulation Simulation `yaml:"simulation" json:"simulation"`
	BlockFEC   BlockFEC   `yaml:"block_fec" json:"block_fec"`
	Link       Link       `yaml:"link" json:"link"`
	Conn       Conn       `yaml:"conn" json:"conn"`
}

// Simulation configures the simulate command.
type Simulation struct {
	Datagrams     int     `yaml:"datagrams" json:"datagrams"`
	DatagramSize  int     `yaml:"datagram_size" json:"datagram_size"`
	MaxWindowSize int     `yaml:"max_window_size" json:"max_window_size"`
	MaxRounds     int     `yaml:"max_rounds" json:"max_rounds"`
	Latency       int     `yaml:"latency" json:"latency"`
	LossRate      float64 `yaml:"loss_rate" json:"loss_rate"`
	AckLossRate   float64 `yaml:"ack_loss_rate" json:"ack_loss_rate"`
	Seed          uint64  `yaml:"seed" json:"seed"`
}

// BlockFEC configures the Reed-Solomon baseline of the blockfec command.
// It shares the datagram count, size, loss rate and seed with Simulation.
type BlockFEC struct {
	SourceShards int `yaml:"source_shards" json:"source_shards"`
	RepairShards int `yaml:"repair_shards" json:"repair_shards"`
}

// Link configures the UDP socket of the cat command.
type Link struct {
	Local     string `yaml:"local" json:"local"`
	Remote    string `yaml:"remote" json:"remote"`
	Broadcast bool   `yaml:"broadcast" json:"broadcast"`
	TTL       int    `yaml:"ttl" json:"ttl"`
	// LossRate drops outgoing packets on purpose.
	LossRate float64 `yaml:"loss_rate" json:"loss_rate"`
}

// Conn configures the connection of the cat command.
type Conn struct {
	MaxWindowSize int     `yaml:"max_window_size" json:"max_window_size"`
	DatagramSize  int     `yaml:"datagram_size" json:"datagram_size"`
	PacketRate    float64 `yaml:"packet_rate" json:"packet_rate"`
	PacketBurst   int     `yaml:"packet_burst" json:"packet_burst"`
}

// Default returns the configuration used if there's no config file.
func Default() *Config {
	return &Config{
		OutputFormat: "table",
		Simulation: Simulation{
			Datagrams:     10000,
			DatagramSize:  200,
			MaxWindowSize: 32,
			MaxRounds:     1000000,
			Latency:       3,
			LossRate:      0.125,
			AckLossRate:   0.125,
			Seed:          1,
		},
		BlockFEC: BlockFEC{
			SourceShards: 8,
			RepairShards: 2,
		},
		Link: Link{
			Local: "0.0.0.0:4110",
		},
		Conn: Conn{
			MaxWindowSize: 16,
			DatagramSize:  1024,
			PacketRate:    1000,
			PacketBurst:   4,
		},
	}
}

// DefaultPath returns the default config file path: ~/.rlnc/ncsim.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".rlnc", "ncsim.yaml")
	}
	return filepath.Join(home, ".rlnc", "ncsim.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns the default Config with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}
