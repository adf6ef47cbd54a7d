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

// Command hnode runs a single head-protocol party: the node runtime
// (C5) wired to the network, chain, persistence, and client API
// collaborators described in §6.
package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"

	"github.com/klaytn/hnode/api"
	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/chainobserver"
	"github.com/klaytn/hnode/chainsim"
	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/internal/hlog"
	"github.com/klaytn/hnode/internal/metrics"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/network"
	"github.com/klaytn/hnode/node"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/queue"
)

var logger = hlog.NewModuleLogger("cmd/hnode")

var (
	hostFlag    = cli.StringFlag{Name: "host", Usage: "address to bind the peer listener to", Value: "0.0.0.0"}
	portFlag    = cli.IntFlag{Name: "port", Usage: "peer listener port", Value: 5001}
	peersFlag   = cli.StringFlag{Name: "peers", Usage: "comma-separated host:port list of peers to dial at startup"}
	apiHostFlag = cli.StringFlag{Name: "api-host", Usage: "address to bind the client API to", Value: "127.0.0.1"}
	apiPortFlag = cli.IntFlag{Name: "api-port", Usage: "client API port", Value: 4001}

	monitoringPortFlag = cli.IntFlag{Name: "monitoring-port", Usage: "Prometheus /metrics port (0 disables it)", Value: 6001}

	persistenceDirFlag     = cli.StringFlag{Name: "persistence-dir", Usage: "directory C2 persists state under", Value: "./hnode-data"}
	persistenceBackendFlag = cli.StringFlag{Name: "persistence-backend", Usage: "file (default), badger, or leveldb", Value: "file"}
	rollbackHistoryFlag    = cli.IntFlag{Name: "rollback-history", Usage: "rollback checkpoint ring depth (0 = use default)"}

	verbosityFlag = cli.IntFlag{Name: "verbosity", Usage: "log verbosity; 0 or below sends logs to stderr instead of stdout, no other level is applied", Value: 3}

	chainConfigFlag  = cli.StringFlag{Name: "chain-config", Usage: "chain collaborator config (not read: this binary always wires the dev-mode simulator)"}
	ledgerConfigFlag = cli.StringFlag{Name: "ledger-config", Usage: "ledger collaborator config"}
	hydraScriptsFlag = cli.StringFlag{Name: "hydra-scripts-tx-id", Usage: "on-chain tx id the published head scripts live at"}

	ownKeyFlag            = cli.StringFlag{Name: "signing-key", Usage: "hex-encoded ed25519 private key (generated if omitted)"}
	otherPartiesFlag      = cli.StringFlag{Name: "other-parties", Usage: "comma-separated hex verification keys of the other head parties"}
	contestationPeriodFlag = cli.DurationFlag{Name: "contestation-period", Usage: "length of the contestation window", Value: 10 * time.Minute}
	reqTxTTLFlag          = cli.IntFlag{Name: "reqtx-ttl", Usage: "ReqTx retry bound stored in the node environment (0 = use default); received ReqTx always start with network.DefaultReqTxTTL"}
)

var runFlags = []cli.Flag{
	hostFlag, portFlag, peersFlag, apiHostFlag, apiPortFlag,
	monitoringPortFlag,
	persistenceDirFlag, persistenceBackendFlag, rollbackHistoryFlag,
	verbosityFlag,
	chainConfigFlag, ledgerConfigFlag, hydraScriptsFlag,
	ownKeyFlag, otherPartiesFlag, contestationPeriodFlag, reqTxTTLFlag,
	configFileFlag,
}

var app = cli.NewApp()

func init() {
	app.Name = "hnode"
	app.Usage = "off-chain head protocol node"
	app.Action = runNode
	app.Flags = runFlags
	app.Commands = []cli.Command{dumpConfigCommand}
	sort.Sort(cli.CommandsByName(app.Commands))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func optionsFromContext(ctx *cli.Context) (node.RunOptions, error) {
	opts := node.RunOptions{
		Host:               ctx.String(hostFlag.Name),
		Port:               ctx.Int(portFlag.Name),
		APIHost:            ctx.String(apiHostFlag.Name),
		APIPort:            ctx.Int(apiPortFlag.Name),
		MonitoringPort:     ctx.Int(monitoringPortFlag.Name),
		PersistenceDir:     ctx.String(persistenceDirFlag.Name),
		PersistenceBackend: ctx.String(persistenceBackendFlag.Name),
		RollbackHistory:    ctx.Int(rollbackHistoryFlag.Name),
		Verbosity:          ctx.Int(verbosityFlag.Name),
		ChainConfig:        ctx.String(chainConfigFlag.Name),
		LedgerConfig:       ctx.String(ledgerConfigFlag.Name),
		HydraScriptsTxId:   ctx.String(hydraScriptsFlag.Name),
		ContestationPeriod: ctx.Duration(contestationPeriodFlag.Name),
		ReqTxTTL:           ctx.Int(reqTxTTLFlag.Name),
	}
	if v := ctx.String(peersFlag.Name); v != "" {
		opts.Peers = strings.Split(v, ",")
	}

	if v := ctx.String(ownKeyFlag.Name); v != "" {
		priv, err := hex.DecodeString(v)
		if err != nil {
			return opts, errors.Wrap(err, "hnode: invalid --signing-key")
		}
		opts.OwnKey = crypto.KeyPair{Private: priv, Public: priv[32:]}
	} else {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return opts, errors.Wrap(err, "hnode: failed to generate signing key")
		}
		opts.OwnKey = kp
	}

	if v := ctx.String(otherPartiesFlag.Name); v != "" {
		for _, h := range strings.Split(v, ",") {
			vkey, err := hex.DecodeString(strings.TrimSpace(h))
			if err != nil {
				return opts, errors.Wrap(err, "hnode: invalid --other-parties entry")
			}
			opts.OtherParties = append(opts.OtherParties, party.Party{VKey: party.VerificationKey(vkey)})
		}
	}

	if configPath := ctx.String(configFileFlag.Name); configPath != "" {
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return opts, err
		}
		if err := applyFileConfig(&opts, fc); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

func runNode(ctx *cli.Context) error {
	if ctx.Int(verbosityFlag.Name) <= 0 {
		hlog.SetOutputToStderr()
	}

	opts, err := optionsFromContext(ctx)
	if err != nil {
		return err
	}

	ledg := ledger.Simple{}
	env := node.InitEnvironment(opts, ledg)

	store, err := node.OpenStore(opts)
	if err != nil {
		return err
	}
	defer store.Close()

	persisted, err := store.Load()
	if err != nil {
		return err
	}
	initial := headstate.Persisted{Current: headstate.Idle(chain.State{}), MaxHistory: opts.RollbackHistory}
	if persisted != nil {
		initial = *persisted
	}

	q := queue.New(0)

	hub, err := network.NewHub(q, env.Party, env.Verifier)
	if err != nil {
		return err
	}

	// chainAdapter is built up front so chainsim.Simulator can observe
	// through it; the Simulator is the only Backend this binary wires,
	// since a real chain client is out of the core's scope (§1).
	chainAdapter := chainobserver.New(q, nil, initial.Current.ChainState)
	sim := chainsim.New(chainAdapter)
	chainAdapter.SetBackend(sim)

	// runtimeHolder breaks the construction cycle between the API server
	// (needs to read the runtime's current state for Greetings) and the
	// runtime (needs the API server as its ClientDispatcher).
	holder := &runtimeHolder{}
	server := api.NewServer(q, holder)
	rt := node.NewRuntime(env, q, store, hub, chainAdapter, server, initial, opts.RollbackHistory, time.Now)
	holder.rt = rt

	listener, err := network.Listen(opts.Host+":"+strconv.Itoa(opts.Port), hub)
	if err != nil {
		return err
	}
	defer listener.Close()

	for _, peerAddr := range opts.Peers {
		if err := network.Dial(peerAddr, hub); err != nil {
			logger.Warn("failed to dial peer at startup", "addr", peerAddr, "err", err)
		}
	}

	stop := make(chan struct{})
	go hub.RunHeartbeat(env.Crypto, stop)
	defer close(stop)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			rt.EnqueueTick()
			metrics.SetPeerCount(hub.PeerCount())
		}
	}()

	if opts.MonitoringPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			addr := fmt.Sprintf(":%d", opts.MonitoringPort)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("monitoring server exited", "err", err)
			}
		}()
	}

	go func() {
		addr := fmt.Sprintf("%s:%d", opts.APIHost, opts.APIPort)
		if err := http.ListenAndServe(addr, server.Handler()); err != nil {
			logger.Error("client API server exited", "err", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		q.Close()
	}()

	rt.Run()
	return nil
}

// runtimeHolder lets the API server read the runtime's current state for
// its Greetings projection without the two needing to be constructed in
// a single expression: the server is built first so node.NewRuntime can
// take it as a ClientDispatcher, and the runtime is assigned into the
// holder immediately after.
type runtimeHolder struct {
	rt *node.Runtime
}

func (h *runtimeHolder) CurrentState() headstate.State {
	return h.rt.CurrentState()
}
