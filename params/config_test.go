// Copyright 2017 The go-ethereum Authors
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
	"testing"
)

func TestMainnetRulesAtForkBoundaries(t *testing.T) {
	tests := []struct {
		height  uint64
		chained bool
		places  int32
		dashes  bool
	}{
		{height: 0, chained: false, places: LegacyDecimalPlaces},
		{height: 33_255_082, chained: false, places: LegacyDecimalPlaces},
		{height: 33_255_083, chained: true, places: LegacyDecimalPlaces},
		{height: 33_719_500, chained: true, places: LegacyDecimalPlaces},
		{height: 33_719_501, chained: true, places: DecimalPlaces},
		{height: 37_899_119, chained: true, places: DecimalPlaces},
		{height: 37_899_120, chained: true, places: DecimalPlaces, dashes: true},
	}
	for _, tc := range tests {
		r := MainnetChainConfig.Rules(tc.height)
		if r.IsChainedCodeHash != tc.chained {
			t.Fatalf("height %d: chained have %v want %v", tc.height, r.IsChainedCodeHash, tc.chained)
		}
		if r.DecimalPlaces != tc.places {
			t.Fatalf("height %d: decimal places have %d want %d", tc.height, r.DecimalPlaces, tc.places)
		}
		if r.AllowConsecutiveDashes != tc.dashes {
			t.Fatalf("height %d: dashes have %v want %v", tc.height, r.AllowConsecutiveDashes, tc.dashes)
		}
	}
}

func TestRulesDeterministic(t *testing.T) {
	if MainnetChainConfig.Rules(40_000_000) != MainnetChainConfig.Rules(40_000_000) {
		t.Fatalf("rules differ for identical heights")
	}
	var nilConfig *ChainConfig
	if r := nilConfig.Rules(99); r.DecimalPlaces != LegacyDecimalPlaces || r.IsChainedCodeHash {
		t.Fatalf("nil config should resolve legacy rules, got %+v", r)
	}
}

func TestCheckConfigForkOrder(t *testing.T) {
	if err := MainnetChainConfig.CheckConfigForkOrder(); err != nil {
		t.Fatalf("mainnet config: %v", err)
	}
	bad := &ChainConfig{Forks: []Fork{
		{Name: DecimalPlaces20Fork, Block: 10},
		{Name: ChainedCodeHashFork, Block: 5},
	}}
	if err := bad.CheckConfigForkOrder(); err == nil {
		t.Fatalf("expected ordering error")
	}
	unknown := &ChainConfig{Forks: []Fork{{Name: "bogus"}}}
	if err := unknown.CheckConfigForkOrder(); err == nil {
		t.Fatalf("expected unknown fork error")
	}
}

func TestChainConfigUnmarshalJSON(t *testing.T) {
	var cfg ChainConfig
	if err := json.Unmarshal([]byte(`{"name":"x","forks":[{"name":"chainedCodeHash","block":7}]}`), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if block, ok := cfg.ForkBlock(ChainedCodeHashFork); !ok || block != 7 {
		t.Fatalf("fork block have %d,%v want 7,true", block, ok)
	}
	if err := json.Unmarshal([]byte(`{"forks":[{"name":"nope","block":1}]}`), &cfg); err == nil {
		t.Fatalf("expected error for unknown fork")
	}
}

func TestReservedNames(t *testing.T) {
	for _, name := range []string{"contract", "blockProduction", "null"} {
		if !IsReservedContractName(name) {
			t.Fatalf("%q should be reserved", name)
		}
	}
	if IsReservedContractName("tokens") {
		t.Fatalf("tokens should not be reserved")
	}
	if !IsReservedAction(InitAction) || IsReservedAction("transfer") {
		t.Fatalf("reserved action mismatch")
	}
}
