package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one end-to-end lottery run.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Accounts is how many funded accounts to provision.
	Accounts int `yaml:"accounts"`

	// Funding is each account's starting balance in ether.
	Funding string `yaml:"funding"`

	// Seed derives the account addresses.
	Seed int64 `yaml:"seed,omitempty"`

	// MinimumStake overrides the default of 0.01 ether.
	MinimumStake string `yaml:"minimumStake,omitempty"`

	// DrawSeed pins the winner selection seed. Without it the block hash
	// source is used, which is still reproducible for a fixed scenario.
	DrawSeed *int64 `yaml:"drawSeed,omitempty"`

	Steps []Step `yaml:"steps"`
}

// Step holds exactly one action.
type Step struct {
	Deploy        *DeployStep     `yaml:"deploy,omitempty"`
	Enter         *EnterStep      `yaml:"enter,omitempty"`
	PickWinner    *PickWinnerStep `yaml:"pickWinner,omitempty"`
	Reject        *RejectStep     `yaml:"reject,omitempty"`
	ExpectPlayers *[]int          `yaml:"expectPlayers,omitempty"`
	ExpectManager *int            `yaml:"expectManager,omitempty"`
	ExpectPool    *string         `yaml:"expectPool,omitempty"`
	ExpectBalance *BalanceCheck   `yaml:"expectBalance,omitempty"`
}

// DeployStep deploys a fresh lottery; later steps target it.
type DeployStep struct {
	From int `yaml:"from"`
}

// EnterStep submits a stake.
type EnterStep struct {
	From  int    `yaml:"from"`
	Value string `yaml:"value"`
	Error string `yaml:"error,omitempty"`
}

// PickWinnerStep triggers the draw. WinnerIn lists the account indexes the
// winner must be one of; Payout is the exact amount the winner must gain.
type PickWinnerStep struct {
	From     int    `yaml:"from"`
	Error    string `yaml:"error,omitempty"`
	WinnerIn []int  `yaml:"winnerIn,omitempty"`
	Payout   string `yaml:"payout,omitempty"`
}

// RejectStep makes an account refuse (or accept again) incoming funds.
type RejectStep struct {
	Account int  `yaml:"account"`
	Reject  bool `yaml:"reject"`
}

// BalanceCheck compares an account's ledger balance in ether.
type BalanceCheck struct {
	Account int    `yaml:"account"`
	Ether   string `yaml:"ether"`
}

func (s Step) action() (string, int) {
	var name string
	n := 0
	for _, candidate := range []struct {
		name string
		set  bool
	}{
		{"deploy", s.Deploy != nil},
		{"enter", s.Enter != nil},
		{"pickWinner", s.PickWinner != nil},
		{"reject", s.Reject != nil},
		{"expectPlayers", s.ExpectPlayers != nil},
		{"expectManager", s.ExpectManager != nil},
		{"expectPool", s.ExpectPool != nil},
		{"expectBalance", s.ExpectBalance != nil},
	} {
		if candidate.set {
			name = candidate.name
			n++
		}
	}
	return name, n
}

// Validate checks the scenario's shape before it runs.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario: name is required")
	}
	if s.Accounts < 1 {
		return fmt.Errorf("scenario %q: accounts must be at least 1", s.Name)
	}
	for i, step := range s.Steps {
		if _, n := step.action(); n != 1 {
			return fmt.Errorf("scenario %q: step %d must have exactly one action, has %d", s.Name, i, n)
		}
	}
	return nil
}

// Load reads a scenario file. Unknown keys are an error.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadDir loads every *.yaml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := Load(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
