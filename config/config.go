package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string        `toml:"DataDir"`
	RPCAddress  string        `toml:"RPCAddress"`
	Environment string        `toml:"Environment"`
	LogLevel    string        `toml:"LogLevel"`
	Node        Node          `toml:"Node"`
	Protocol    Protocol      `toml:"Protocol"`
	Fees        Fees          `toml:"Fees"`
	Queue       Queue         `toml:"Queue"`
	Pegged      []PeggedToken `toml:"PeggedTokens"`
	Governance  Governance    `toml:"Governance"`
	RPC         RPC           `toml:"RPC"`
	History     History       `toml:"History"`
}

// Load loads the configuration from the given path, writing the defaults
// first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a local development configuration with one pegged token.
func Default() *Config {
	return &Config{
		DataDir:     "./peg-data",
		RPCAddress:  ":8080",
		Environment: "local",
		LogLevel:    "info",
		Node:        Node{BlockTimeSecs: 5, PersistEveryBlocks: 12},
		Protocol: Protocol{
			QueueAddress:        "0x00000000000000000000000000000000000000a1",
			Vault:               "0x00000000000000000000000000000000000000a2",
			ACToken:             "0x00000000000000000000000000000000000000b1",
			TCToken:             "0x00000000000000000000000000000000000000b2",
			FeeCollector:        "0x00000000000000000000000000000000000000d1",
			TCInterestCollector: "0x00000000000000000000000000000000000000d2",
			ProtThrld:           "1.5",
			LiqThrld:            "1.04",
			FluxDecayBlockSpan:  2880,
			EMABlockSpan:        120,
			SettlementBlockSpan: 20160,
			SuccessFee:          "0.1",
			AppreciationFactor:  "0.5",
			FeeTokenPct:         "0.5",
		},
		Fees: Fees{
			TCMintFee:        "0.005",
			TCRedeemFee:      "0.005",
			SwapTPforTPFee:   "0.001",
			SwapTPforTCFee:   "0.001",
			SwapTCforTPFee:   "0.001",
			MintTCandTPFee:   "0.001",
			RedeemTCandTPFee: "0.001",
		},
		Queue: Queue{
			MaxOperPerBatch:   10,
			MinOperWaitingBlk: 1,
			ExecFee:           "0.0001",
			ExecFees:          map[string]string{},
		},
		Pegged: []PeggedToken{{
			Token:               "0x00000000000000000000000000000000000000b3",
			PriceProvider:       "0x00000000000000000000000000000000000000c1",
			Price:               "1",
			Ctarg:               "4",
			SmoothingFactor:     "0.01",
			MintFee:             "0.005",
			RedeemFee:           "0.005",
			FluxMaxAbsolute:     "100000",
			FluxMaxDifferential: "50000",
			Interest: Interest{
				Tils:    "0.01",
				TilsMin: "0.001",
				TilsMax: "0.1",
				FacMin:  "0.1",
				FacMax:  "5",
				Bmin:    30,
			},
		}},
		Governance: Governance{Changers: []string{}, Executors: []string{}},
		RPC:        RPC{RateLimitPerSecond: 10, Burst: 20, ReadTimeoutSecs: 10, WriteTimeoutSecs: 10},
		History:    History{Driver: "sqlite", DSN: "peg-history.db"},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.Queue.ExecFees == nil {
		c.Queue.ExecFees = map[string]string{}
	}
	if c.Governance.Changers == nil {
		c.Governance.Changers = []string{}
	}
	if c.Governance.Executors == nil {
		c.Governance.Executors = []string{}
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.Node.BlockTimeSecs <= 0 {
		c.Node.BlockTimeSecs = 5
	}
	if c.Node.PersistEveryBlocks == 0 {
		c.Node.PersistEveryBlocks = 1
	}
	if c.RPC.Burst <= 0 {
		c.RPC.Burst = 1
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
