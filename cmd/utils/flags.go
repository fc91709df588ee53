// Copyright 2015 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package utils contains internal helper functions for ssc commands.
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/inconshreveable/log15"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/tos-network/ssc/core"
	"github.com/tos-network/ssc/docdb/leveldb"
	"github.com/tos-network/ssc/internal/flags"
	"github.com/tos-network/ssc/params"
	"github.com/urfave/cli/v2"
)

// These are all the command line flags we support.
// If you add to this list, please remember to include the
// flag in the appropriate command definition.
//
// The flags are defined here so their names and help texts
// are the same for all commands.

var (
	// General settings
	DataDirFlag = &cli.StringFlag{
		Name:     "datadir",
		Usage:    "Data directory for the contract database",
		Value:    DefaultDataDir(),
		Category: flags.DatabaseCategory,
	}
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}
	CacheFlag = &cli.IntFlag{
		Name:     "cache",
		Usage:    "Megabytes of memory allocated to the database",
		Value:    64,
		Category: flags.DatabaseCategory,
	}
	HandlesFlag = &cli.IntFlag{
		Name:     "handles",
		Usage:    "Open file handles allowed to the database",
		Value:    256,
		Category: flags.DatabaseCategory,
	}

	// Engine settings
	NetworkFlag = &cli.StringFlag{
		Name:     "network",
		Usage:    "Rule schedule to execute under (mainnet, test, legacy)",
		Value:    "mainnet",
		Category: flags.EngineCategory,
	}
	ForkOverrideFlag = &cli.StringFlag{
		Name:     "override.forks",
		Usage:    "Comma separated fork activation overrides (e.g. chainedCodeHash=100,decimalPlaces20=200)",
		Category: flags.EngineCategory,
	}
	TimeoutFlag = &cli.DurationFlag{
		Name:     "engine.timeout",
		Usage:    "Wall-clock budget of one contract execution",
		Value:    core.DefaultConfig.Timeout,
		Category: flags.EngineCategory,
	}
	MemoryLimitFlag = &cli.Uint64Flag{
		Name:     "engine.memory",
		Usage:    "Heap growth ceiling of one contract execution in megabytes (0 = disabled)",
		Value:    core.DefaultConfig.MemoryLimit,
		Category: flags.EngineCategory,
	}
	CallDepthFlag = &cli.IntFlag{
		Name:     "engine.calldepth",
		Usage:    "Nesting limit of cross-contract calls",
		Value:    core.DefaultConfig.MaxCallDepth,
		Category: flags.EngineCategory,
	}
	BootstrapAccountFlag = &cli.StringFlag{
		Name:     "engine.bootstrap",
		Usage:    "Account allowed to reclaim contracts owned by the null account",
		Value:    core.DefaultConfig.BootstrapAccount,
		Category: flags.EngineCategory,
	}

	// Logging settings
	VerbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug",
		Value:    int(log.LvlInfo),
		Category: flags.LoggingCategory,
	}
	LogFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format (terminal, logfmt, json); terminal is used on a tty by default",
		Category: flags.LoggingCategory,
	}
)

var (
	// DatabaseFlags is the flag group of every command that opens the store.
	DatabaseFlags = []cli.Flag{
		DataDirFlag,
		CacheFlag,
		HandlesFlag,
	}
	// EngineFlags is the flag group of every command that executes contracts.
	EngineFlags = []cli.Flag{
		NetworkFlag,
		ForkOverrideFlag,
		TimeoutFlag,
		MemoryLimitFlag,
		CallDepthFlag,
		BootstrapAccountFlag,
	}
	// LoggingFlags configure the root logger.
	LoggingFlags = []cli.Flag{
		VerbosityFlag,
		LogFormatFlag,
	}
)

// DefaultDataDir is the default data directory to use for the databases.
func DefaultDataDir() string {
	if home := flags.HomeDir(); home != "" {
		return filepath.Join(home, ".ssc")
	}
	return ""
}

// MakeDataDir retrieves the currently requested data directory, terminating
// if none (or the empty string) is specified.
func MakeDataDir(ctx *cli.Context) string {
	if path := ctx.String(DataDirFlag.Name); path != "" {
		return flags.ExpandPath(path)
	}
	Fatalf("Cannot determine default data directory, please set manually (--datadir)")
	return ""
}

// SetupLogging installs the root log handler selected by the logging flags.
func SetupLogging(ctx *cli.Context) error {
	return setupLogging(ctx, os.Stderr)
}

func setupLogging(ctx *cli.Context, out *os.File) error {
	var (
		w      io.Writer = out
		format log.Format
		tty    = isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	)
	switch ctx.String(LogFormatFlag.Name) {
	case "":
		if tty {
			w, format = colorable.NewColorable(out), log.TerminalFormat()
		} else {
			format = log.LogfmtFormat()
		}
	case "terminal":
		w, format = colorable.NewColorable(out), log.TerminalFormat()
	case "logfmt":
		format = log.LogfmtFormat()
	case "json":
		format = log.JsonFormat()
	default:
		return fmt.Errorf("unknown log format %q", ctx.String(LogFormatFlag.Name))
	}
	lvl := log.Lvl(ctx.Int(VerbosityFlag.Name))
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(w, format)))
	return nil
}

// MakeChainConfig resolves the rule schedule selected by the engine flags.
func MakeChainConfig(ctx *cli.Context) (*params.ChainConfig, error) {
	var base *params.ChainConfig
	switch name := ctx.String(NetworkFlag.Name); name {
	case "mainnet", "":
		base = params.MainnetChainConfig
	case "test":
		base = params.TestChainConfig
	case "legacy":
		base = params.LegacyChainConfig
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
	overrides, err := ParseForkOverrides(ctx.String(ForkOverrideFlag.Name))
	if err != nil {
		return nil, err
	}
	if len(overrides) == 0 {
		return base, nil
	}
	cfg := &params.ChainConfig{Name: base.Name + "-override"}
	for _, f := range base.Forks {
		if block, ok := overrides[f.Name]; ok {
			f.Block = block
			delete(overrides, f.Name)
		}
		cfg.Forks = append(cfg.Forks, f)
	}
	for name, block := range overrides {
		cfg.Forks = append(cfg.Forks, params.Fork{Name: name, Block: block})
	}
	sortForks(cfg.Forks)
	if err := cfg.CheckConfigForkOrder(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func sortForks(forks []params.Fork) {
	sort.SliceStable(forks, func(i, j int) bool {
		if forks[i].Block != forks[j].Block {
			return forks[i].Block < forks[j].Block
		}
		return forks[i].Name < forks[j].Name
	})
}

// ParseForkOverrides parses "name=block,name=block". Malformed entries are
// rejected.
func ParseForkOverrides(input string) (map[string]uint64, error) {
	overrides := make(map[string]uint64)
	for _, entry := range SplitAndTrim(input) {
		kv := strings.Split(entry, "=")
		if len(kv) != 2 || kv[0] == "" {
			return nil, fmt.Errorf("invalid fork override %q", entry)
		}
		block, err := strconv.ParseUint(kv[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fork override %q: %v", entry, err)
		}
		overrides[kv[0]] = block
	}
	return overrides, nil
}

// SplitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func SplitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// SetEngineConfig applies the engine flags that were set explicitly on top
// of cfg.
func SetEngineConfig(ctx *cli.Context, cfg *core.Config) error {
	if ctx.IsSet(NetworkFlag.Name) || ctx.IsSet(ForkOverrideFlag.Name) || cfg.Chain == nil {
		chain, err := MakeChainConfig(ctx)
		if err != nil {
			return err
		}
		cfg.Chain = chain
	}
	if ctx.IsSet(TimeoutFlag.Name) {
		cfg.Timeout = ctx.Duration(TimeoutFlag.Name)
	}
	if ctx.IsSet(MemoryLimitFlag.Name) {
		cfg.MemoryLimit = ctx.Uint64(MemoryLimitFlag.Name)
	}
	if ctx.IsSet(CallDepthFlag.Name) {
		cfg.MaxCallDepth = ctx.Int(CallDepthFlag.Name)
	}
	if ctx.IsSet(BootstrapAccountFlag.Name) {
		cfg.BootstrapAccount = ctx.String(BootstrapAccountFlag.Name)
	}
	return nil
}

// MakeDatabase opens the contract database kept in datadir.
func MakeDatabase(datadir string, cache, handles int, readonly bool) *leveldb.Database {
	db, err := leveldb.New(filepath.Join(datadir, "contracts"), cache, handles, readonly)
	if err != nil {
		Fatalf("Could not open database: %v", err)
	}
	return db
}
