// Copyright 2019 The go-ethereum Authors
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
	"flag"
	"reflect"
	"testing"
	"time"

	"github.com/tos-network/ssc/core"
	"github.com/tos-network/ssc/params"
	"github.com/urfave/cli/v2"
)

func newContext(t *testing.T, fl []cli.Flag, args ...string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = fl
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		if err := f.Apply(set); err != nil {
			t.Fatalf("apply flag: %v", err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cli.NewContext(app, set, nil)
}

func TestParseForkOverrides(t *testing.T) {
	tests := []struct {
		name string
		args string
		want map[string]uint64
		fail bool
	}{
		{"2 forks", "chainedCodeHash=100, decimalPlaces20=200", map[string]uint64{"chainedCodeHash": 100, "decimalPlaces20": 200}, false},
		{"1 fork", "chainedCodeHash=7", map[string]uint64{"chainedCodeHash": 7}, false},
		{"empty", "", map[string]uint64{}, false},
		{"garbage", "a=b=c", nil, true},
		{"not a number", "chainedCodeHash=x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseForkOverrides(tt.args)
			if tt.fail {
				if err == nil {
					t.Fatalf("expected an error, got %v", got)
				}
				return
			}
			if err != nil || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseForkOverrides() = %v, %v, want %v", got, err, tt.want)
			}
		})
	}
}

func TestMakeChainConfig(t *testing.T) {
	ctx := newContext(t, EngineFlags, "--network=legacy", "--override.forks=chainedCodeHash=50")
	cfg, err := MakeChainConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rules(49).IsChainedCodeHash || !cfg.Rules(50).IsChainedCodeHash {
		t.Fatalf("override not applied: %v", cfg)
	}

	ctx = newContext(t, EngineFlags, "--override.forks=decimalPlaces20=1")
	cfg, err = MakeChainConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if block, _ := cfg.ForkBlock(params.DecimalPlaces20Fork); block != 1 {
		t.Fatalf("decimalPlaces20 at %d", block)
	}
	if block, _ := cfg.ForkBlock(params.ChainedCodeHashFork); block != 33_255_083 {
		t.Fatalf("untouched fork moved to %d", block)
	}

	ctx = newContext(t, EngineFlags, "--network=nowhere")
	if _, err := MakeChainConfig(ctx); err == nil {
		t.Fatalf("unknown network accepted")
	}
	ctx = newContext(t, EngineFlags, "--override.forks=unknownFork=3")
	if _, err := MakeChainConfig(ctx); err == nil {
		t.Fatalf("unknown fork accepted")
	}
}

func TestSetEngineConfig(t *testing.T) {
	cfg := core.DefaultConfig
	ctx := newContext(t, EngineFlags, "--engine.timeout=250ms", "--engine.calldepth=3", "--network=test")
	if err := SetEngineConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Timeout != 250*time.Millisecond || cfg.MaxCallDepth != 3 || cfg.Chain != params.TestChainConfig {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.MemoryLimit != core.DefaultConfig.MemoryLimit || cfg.BootstrapAccount != core.DefaultConfig.BootstrapAccount {
		t.Fatalf("unset flags overrode the config: %+v", cfg)
	}
}

func TestSplitAndTrim(t *testing.T) {
	if got := SplitAndTrim(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %q", got)
	}
}
