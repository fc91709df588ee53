// Copyright 2014 The go-ethereum Authors
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

// ssc is the command-line client of the smart contract sidechain engine.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/tos-network/ssc/cmd/utils"
	"github.com/tos-network/ssc/internal/flags"
	"github.com/urfave/cli/v2"
)

const (
	clientIdentifier = "ssc" // Client identifier to advertise over the network
)

var (
	// Git SHA1 commit hash of the release (set via linker flags)
	gitCommit = ""
	gitDate   = ""
	// The app that holds all commands and flags.
	app = flags.NewApp(gitCommit, gitDate, "the smart contract sidechain engine")
)

func init() {
	app.HideVersion = true // we have a command to print the version
	app.Commands = []*cli.Command{
		replayCommand,
		validateNameCommand,
		dumpConfigCommand,
		versionCommand,
		licenseCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Flags = append([]cli.Flag{utils.ConfigFileFlag}, utils.LoggingFlags...)
	app.Before = func(ctx *cli.Context) error {
		return utils.SetupLogging(ctx)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
