// Copyright 2016 The go-ethereum Authors
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
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/fatih/color"
	"github.com/tos-network/ssc/accountname"
	"github.com/tos-network/ssc/cmd/utils"
	"github.com/tos-network/ssc/params"
	"github.com/urfave/cli/v2"
)

var (
	HeightFlag = &cli.Uint64Flag{
		Name:  "height",
		Usage: "Reference block height whose naming rules apply",
	}
	versionCommand = &cli.Command{
		Action:    version,
		Name:      "version",
		Usage:     "Print version numbers",
		ArgsUsage: " ",
		Description: `
The output of this command is supposed to be machine-readable.
`,
	}
	validateNameCommand = &cli.Command{
		Action:    validateNames,
		Name:      "validate-name",
		Usage:     "Check account names against the naming rules",
		ArgsUsage: "<name> [<name>...]",
		Flags: []cli.Flag{
			HeightFlag,
			utils.NetworkFlag,
			utils.ForkOverrideFlag,
		},
		Description: `
Checks every argument against the account naming rules in force at the given
reference block height and prints one verdict per name. The command fails if
any name is invalid.
`,
	}
	licenseCommand = &cli.Command{
		Action:    license,
		Name:      "license",
		Usage:     "Display license information",
		ArgsUsage: " ",
	}
)

func version(ctx *cli.Context) error {
	fmt.Println(strings.Title(clientIdentifier))
	fmt.Println("Version:", params.VersionWithMeta)
	if gitCommit != "" {
		fmt.Println("Git Commit:", gitCommit)
	}
	if gitDate != "" {
		fmt.Println("Git Commit Date:", gitDate)
	}
	fmt.Println("Architecture:", runtime.GOARCH)
	fmt.Println("Go Version:", runtime.Version())
	fmt.Println("Operating System:", runtime.GOOS)
	return nil
}

func validateNames(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		utils.Fatalf("This command requires at least one name.")
	}
	chain, err := utils.MakeChainConfig(ctx)
	if err != nil {
		return err
	}
	if checkNames(os.Stdout, chain.Rules(ctx.Uint64(HeightFlag.Name)), ctx.Args().Slice()) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// checkNames prints a verdict per name and returns the number of invalid
// ones.
func checkNames(w io.Writer, rules params.Rules, names []string) int {
	var (
		valid   = color.New(color.FgGreen)
		invalid = color.New(color.FgRed)
		bad     int
	)
	for _, name := range names {
		if accountname.Validate(name, rules) {
			valid.Fprintf(w, "%-16s valid\n", name)
			continue
		}
		bad++
		invalid.Fprintf(w, "%-16s invalid\n", name)
	}
	return bad
}

func license(_ *cli.Context) error {
	fmt.Println(`ssc licensing summary

- Default repository license: GNU LGPL-3.0 (see LICENSE)
- cmd/ command applications include GPL-3.0-governed components (see COPYING)`)
	return nil
}
