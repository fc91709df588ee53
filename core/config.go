package core

import (
	"errors"
	"time"

	"github.com/tos-network/ssc/params"
)

// DefaultConfig contains the engine settings used on the main net.
var DefaultConfig = Config{
	Timeout:             10 * time.Second,
	MemoryLimit:         64,
	MaxCallDepth:        16,
	MaxCallStackSize:    1024,
	MaxHandles:          100000,
	BootstrapAccount:    "steemsc",
	TokenContract:       "tokens",
	TokenTransferAction: "transferFromContract",
	Chain:               params.MainnetChainConfig,
}

// Config contains the options of a contract engine. A Config is passed to
// every Engine explicitly; there is no process-wide engine state.
type Config struct {
	Timeout          time.Duration // Wall-clock budget of one isolate
	MemoryLimit      uint64        // Heap growth ceiling of one isolate in megabytes, zero disables
	MaxCallDepth     int           // Nesting limit of cross-contract calls
	MaxCallStackSize int           // JavaScript call-stack ceiling of one isolate
	MaxHandles       int           `toml:",omitempty"` // Decimal handles per execution, zero is unbounded

	// BootstrapAccount may reclaim contracts owned by params.NullAccount.
	BootstrapAccount string

	// Token ledger contract and action addressed by transferTokens.
	TokenContract       string
	TokenTransferAction string

	// Chain is the height-gated rule schedule.
	Chain *params.ChainConfig `toml:",omitempty"`
}

var (
	errNoChainConfig = errors.New("engine config has no chain config")
	errBadCallDepth  = errors.New("engine config needs a positive call depth")
)

// sanitize checks the configuration and fills unset limits with defaults.
func (c Config) sanitize() (Config, error) {
	if c.Chain == nil {
		return c, errNoChainConfig
	}
	if err := c.Chain.CheckConfigForkOrder(); err != nil {
		return c, err
	}
	if c.MaxCallDepth <= 0 {
		return c, errBadCallDepth
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.TokenContract == "" {
		c.TokenContract = DefaultConfig.TokenContract
	}
	if c.TokenTransferAction == "" {
		c.TokenTransferAction = DefaultConfig.TokenTransferAction
	}
	return c, nil
}
