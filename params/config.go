// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package params

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Fork names understood by ChainConfig.Rules.
const (
	ChainedCodeHashFork   = "chainedCodeHash"
	DecimalPlaces20Fork   = "decimalPlaces20"
	AccountNameDashesFork = "accountNameDashes"
)

var (
	// MainnetChainConfig is the rule schedule of the production sidechain.
	// Heights refer to the upstream (reference) chain block number carried by
	// every transaction.
	MainnetChainConfig = &ChainConfig{
		Name: "mainnet",
		Forks: []Fork{
			{Name: ChainedCodeHashFork, Block: 33_255_083},
			{Name: DecimalPlaces20Fork, Block: 33_719_501},
			{Name: AccountNameDashesFork, Block: 37_899_120},
		},
	}

	// TestChainConfig activates every fork from genesis.
	TestChainConfig = &ChainConfig{
		Name: "test",
		Forks: []Fork{
			{Name: ChainedCodeHashFork, Block: 0},
			{Name: DecimalPlaces20Fork, Block: 0},
			{Name: AccountNameDashesFork, Block: 0},
		},
	}

	// LegacyChainConfig never activates any fork. Useful for replaying the
	// pre-fork behaviour in tests.
	LegacyChainConfig = &ChainConfig{Name: "legacy"}

	knownForks = map[string]func(*Rules){
		ChainedCodeHashFork:   func(r *Rules) { r.IsChainedCodeHash = true },
		DecimalPlaces20Fork:   func(r *Rules) { r.DecimalPlaces = 20 },
		AccountNameDashesFork: func(r *Rules) { r.AllowConsecutiveDashes = true },
	}
)

// Fork is a single rule change that takes effect at Block (inclusive).
type Fork struct {
	Name  string `json:"name" toml:",omitempty"`
	Block uint64 `json:"block" toml:",omitempty"`
}

// ChainConfig is the ordered activation table of height-gated rule variants.
// The table is resolved once per transaction through Rules, never consulted
// inline by callers.
type ChainConfig struct {
	Name  string `json:"name" toml:",omitempty"`
	Forks []Fork `json:"forks" toml:",omitempty"`
}

// CheckConfigForkOrder verifies that every fork is known, listed once, and
// that activation heights never decrease along the table.
func (c *ChainConfig) CheckConfigForkOrder() error {
	seen := make(map[string]bool, len(c.Forks))
	var last uint64
	for i, f := range c.Forks {
		if _, ok := knownForks[f.Name]; !ok {
			return fmt.Errorf("unknown fork %q", f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("fork %q listed twice", f.Name)
		}
		seen[f.Name] = true
		if i > 0 && f.Block < last {
			return fmt.Errorf("unsupported fork ordering: %v enabled at %v, but %v enabled at %v",
				c.Forks[i-1].Name, last, f.Name, f.Block)
		}
		last = f.Block
	}
	return nil
}

// ForkBlock returns the activation height of the named fork.
func (c *ChainConfig) ForkBlock(name string) (uint64, bool) {
	for _, f := range c.Forks {
		if f.Name == name {
			return f.Block, true
		}
	}
	return 0, false
}

// String implements the fmt.Stringer interface.
func (c *ChainConfig) String() string {
	forks := make([]Fork, len(c.Forks))
	copy(forks, c.Forks)
	sort.SliceStable(forks, func(i, j int) bool { return forks[i].Block < forks[j].Block })

	var b strings.Builder
	fmt.Fprintf(&b, "Chain: %s\n", c.Name)
	for _, f := range forks {
		fmt.Fprintf(&b, " - %-20s #%d\n", f.Name+":", f.Block)
	}
	return b.String()
}

// UnmarshalJSON rejects configs that mention unknown forks.
func (c *ChainConfig) UnmarshalJSON(input []byte) error {
	type chainConfigAlias ChainConfig
	var dec chainConfigAlias
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	cfg := ChainConfig(dec)
	if err := cfg.CheckConfigForkOrder(); err != nil {
		return err
	}
	*c = cfg
	return nil
}

// Rules is the set of rule variants in force at one height. It is a plain
// value: two calls with the same height produce equal Rules.
type Rules struct {
	Height uint64

	// IsChainedCodeHash folds nested contract hashes with sha256 instead of
	// appending the hex strings.
	IsChainedCodeHash bool

	// DecimalPlaces used for rounded decimal operations.
	DecimalPlaces int32

	// AllowConsecutiveDashes lifts the "--" restriction on account labels.
	AllowConsecutiveDashes bool
}

// Rules resolves the activation table at the given height.
func (c *ChainConfig) Rules(height uint64) Rules {
	rules := Rules{
		Height:        height,
		DecimalPlaces: LegacyDecimalPlaces,
	}
	if c == nil {
		return rules
	}
	for _, f := range c.Forks {
		if height < f.Block {
			continue
		}
		if apply, ok := knownForks[f.Name]; ok {
			apply(&rules)
		}
	}
	return rules
}
