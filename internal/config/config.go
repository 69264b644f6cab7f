// Package config loads the poolwager server configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/big"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"poolwager/internal/entropy"
	"poolwager/internal/models"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "poolwager.yaml"

const defaultConfigYAML = `# poolwager configuration
addr: ":8080"

# Smallest accepted stake, in ether.
minimum_stake: "0.01"

# Winner selection seed source: blockhash, seeded or crypto.
entropy: blockhash
seed: 0

# SQLite receipt journal. Use ":memory:" for a throwaway journal.
database: poolwager.db
receipt_retention: 24h
prune_interval: 10m

# Accounts funded at startup.
genesis:
  accounts: 10
  funding: "100"
`

// Genesis describes the accounts provisioned at startup.
type Genesis struct {
	Accounts int    `yaml:"accounts"`
	Funding  string `yaml:"funding"`
}

// Config models poolwager.yaml.
type Config struct {
	Addr             string        `yaml:"addr"`
	Debug            bool          `yaml:"debug"`
	MinimumStake     string        `yaml:"minimum_stake"`
	Entropy          string        `yaml:"entropy"`
	Seed             int64         `yaml:"seed"`
	Database         string        `yaml:"database"`
	ReceiptRetention time.Duration `yaml:"receipt_retention"`
	PruneInterval    time.Duration `yaml:"prune_interval"`
	Genesis          Genesis       `yaml:"genesis"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultConfigYAML), &cfg); err != nil {
		panic(fmt.Sprintf("config: bad default: %v", err))
	}
	return cfg
}

// DefaultYAML returns the commented default file, for writing a starter config.
func DefaultYAML() string {
	return defaultConfigYAML
}

// Load reads path over the defaults. A missing file yields the defaults
// when allowMissing is set.
func Load(path string, allowMissing bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// MinimumStakeWei parses MinimumStake.
func (c Config) MinimumStakeWei() (*big.Int, error) {
	return models.ParseEther(c.MinimumStake)
}

// GenesisFundingWei parses Genesis.Funding.
func (c Config) GenesisFundingWei() (*big.Int, error) {
	return models.ParseEther(c.Genesis.Funding)
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if _, err := c.MinimumStakeWei(); err != nil {
		errs = append(errs, fmt.Errorf("minimum_stake: %w", err))
	}
	if _, err := entropy.Named(c.Entropy, c.Seed); err != nil {
		errs = append(errs, fmt.Errorf("entropy: %w", err))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.ReceiptRetention <= 0 {
		errs = append(errs, errors.New("receipt_retention must be positive"))
	}
	if c.PruneInterval <= 0 {
		errs = append(errs, errors.New("prune_interval must be positive"))
	}
	if c.Genesis.Accounts < 0 {
		errs = append(errs, errors.New("genesis.accounts must not be negative"))
	}
	if _, err := c.GenesisFundingWei(); err != nil {
		errs = append(errs, fmt.Errorf("genesis.funding: %w", err))
	}
	return errors.Join(errs...)
}
