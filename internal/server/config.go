package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the complete arena configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Table  TableSettings  `hcl:"table,block"`
}

// ServerSettings contains gateway-level configuration.
type ServerSettings struct {
	Address                string `hcl:"address,optional"`
	Port                   int    `hcl:"port,optional"`
	LogLevel               string `hcl:"log_level,optional"`
	DatabasePath           string `hcl:"database_path,optional"`
	TurnTimeoutSecs        int    `hcl:"turn_timeout_seconds,optional"`
	MatchmakingTimeoutSecs int    `hcl:"matchmaking_timeout_seconds,optional"`
	MintPerKey             int64  `hcl:"mint_per_key,optional"`
}

// TableSettings defines the stakes every table plays at.
type TableSettings struct {
	SmallBlind int64 `hcl:"small_blind,optional"`
	BigBlind   int64 `hcl:"big_blind,optional"`
	BuyInMin   int64 `hcl:"buy_in_min,optional"`
	BuyInMax   int64 `hcl:"buy_in_max,optional"`
	RakeBPS    int   `hcl:"rake_bps,optional"`
}

// DefaultConfig returns the default arena configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:                "localhost",
			Port:                   8080,
			LogLevel:               "info",
			DatabasePath:           "silicon-casino.db",
			TurnTimeoutSecs:        30,
			MatchmakingTimeoutSecs: 60,
			MintPerKey:             10000,
		},
		Table: TableSettings{
			SmallBlind: 5,
			BigBlind:   10,
			BuyInMin:   500,
			BuyInMax:   5000,
			RakeBPS:    0,
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.DatabasePath == "" {
		config.Server.DatabasePath = defaults.Server.DatabasePath
	}
	if config.Server.TurnTimeoutSecs == 0 {
		config.Server.TurnTimeoutSecs = defaults.Server.TurnTimeoutSecs
	}
	if config.Server.MatchmakingTimeoutSecs == 0 {
		config.Server.MatchmakingTimeoutSecs = defaults.Server.MatchmakingTimeoutSecs
	}
	if config.Server.MintPerKey == 0 {
		config.Server.MintPerKey = defaults.Server.MintPerKey
	}
	if config.Table.SmallBlind == 0 {
		config.Table.SmallBlind = defaults.Table.SmallBlind
	}
	if config.Table.BigBlind == 0 {
		config.Table.BigBlind = defaults.Table.BigBlind
	}
	if config.Table.BuyInMin == 0 {
		config.Table.BuyInMin = defaults.Table.BuyInMin
	}
	if config.Table.BuyInMax == 0 {
		config.Table.BuyInMax = defaults.Table.BuyInMax
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Table.SmallBlind <= 0 {
		return fmt.Errorf("small_blind must be positive, got %d", c.Table.SmallBlind)
	}
	if c.Table.BigBlind <= c.Table.SmallBlind {
		return fmt.Errorf("big_blind %d must exceed small_blind %d", c.Table.BigBlind, c.Table.SmallBlind)
	}
	if c.Table.BuyInMin < c.Table.BigBlind {
		return fmt.Errorf("buy_in_min %d must cover at least one big blind %d", c.Table.BuyInMin, c.Table.BigBlind)
	}
	if c.Table.BuyInMax < c.Table.BuyInMin {
		return fmt.Errorf("buy_in_max %d below buy_in_min %d", c.Table.BuyInMax, c.Table.BuyInMin)
	}
	if c.Table.RakeBPS < 0 || c.Table.RakeBPS > 1000 {
		return fmt.Errorf("rake_bps %d out of range 0..1000", c.Table.RakeBPS)
	}
	if c.Server.TurnTimeoutSecs <= 0 {
		return fmt.Errorf("turn_timeout_seconds must be positive")
	}
	if c.Server.MatchmakingTimeoutSecs <= 0 {
		return fmt.Errorf("matchmaking_timeout_seconds must be positive")
	}
	if c.Server.MintPerKey <= 0 {
		return fmt.Errorf("mint_per_key must be positive")
	}
	return nil
}
