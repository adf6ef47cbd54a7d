// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Command publish-scripts publishes the prerequisite on-chain scripts a
// head needs before any party can run hnode against it (§6's second CLI
// command), and prints the resulting tx id for use as --hydra-scripts-tx-id.
package main

import (
	"fmt"
	"os"

	uuid "github.com/hashicorp/go-uuid"
	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/hnode/internal/hlog"
)

var logger = hlog.NewModuleLogger("cmd/publish-scripts")

var chainEndpointFlag = cli.StringFlag{
	Name:  "chain-endpoint",
	Usage: "chain RPC endpoint to publish the scripts to (empty mints a dev-mode id, no chain interaction)",
}

var app = cli.NewApp()

func init() {
	app.Name = "publish-scripts"
	app.Usage = "publish the on-chain scripts a head needs before parties can open one"
	app.Flags = []cli.Flag{chainEndpointFlag}
	app.Action = publish
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func publish(ctx *cli.Context) error {
	endpoint := ctx.String(chainEndpointFlag.Name)
	if endpoint != "" {
		// Publishing against a real chain is out of the core's scope
		// (§1); this binary only covers the dev-mode path used with
		// chainsim.
		return fmt.Errorf("publish-scripts: --chain-endpoint is not yet wired to a real chain client")
	}

	txId, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	logger.Info("minted dev-mode hydra scripts tx id", "txId", txId)
	fmt.Println(txId)
	return nil
}
