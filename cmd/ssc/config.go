// Copyright 2017 The go-ethereum Authors
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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"
	"github.com/tos-network/ssc/cmd/utils"
	"github.com/tos-network/ssc/core"
	"github.com/tos-network/ssc/internal/flags"
	"github.com/urfave/cli/v2"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "[<file>]",
		Flags:       append(append([]cli.Flag{}, utils.DatabaseFlags...), utils.EngineFlags...),
		Description: `The dumpconfig command shows configuration values.`,
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// databaseConfig locates and sizes the contract database.
type databaseConfig struct {
	DataDir string
	Cache   int
	Handles int
}

type sscConfig struct {
	Engine   core.Config
	Database databaseConfig
}

func loadConfig(file string, cfg *sscConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func defaultConfig() sscConfig {
	cfg := sscConfig{
		Engine: core.DefaultConfig,
		Database: databaseConfig{
			DataDir: utils.DataDirFlag.Value,
			Cache:   utils.CacheFlag.Value,
			Handles: utils.HandlesFlag.Value,
		},
	}
	// The rule schedule is resolved from the file or the flags, never
	// decoded into the shared defaults.
	cfg.Engine.Chain = nil
	return cfg
}

// makeConfig loads the configuration file, if any, and applies the flags
// set on the command line on top of it.
func makeConfig(ctx *cli.Context) (sscConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(utils.ConfigFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := utils.SetEngineConfig(ctx, &cfg.Engine); err != nil {
		return cfg, err
	}
	if ctx.IsSet(utils.DataDirFlag.Name) {
		cfg.Database.DataDir = ctx.String(utils.DataDirFlag.Name)
	}
	if ctx.IsSet(utils.CacheFlag.Name) {
		cfg.Database.Cache = ctx.Int(utils.CacheFlag.Name)
	}
	if ctx.IsSet(utils.HandlesFlag.Name) {
		cfg.Database.Handles = ctx.Int(utils.HandlesFlag.Name)
	}
	cfg.Database.DataDir = flags.ExpandPath(cfg.Database.DataDir)
	return cfg, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.Write(out)

	return nil
}
