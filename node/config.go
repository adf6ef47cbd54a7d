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

// Package node wires C5, the node runtime, together with the collaborator
// adapters (persistence, network, chain observer, API) per the
// RunOptions/initEnvironment contract in §6. It builds the Environment and
// the persistence store; cmd/hnode builds the other collaborators (network
// hub, chain adapter, API server, ledger). headlogic never constructs any.
package node

import (
	"time"

	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/network"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/persistence"
)

// RunOptions is the parsed shape of the run-node CLI surface (§6): flags
// read by cmd/hnode and handed to InitEnvironment/OpenStore.
type RunOptions struct {
	Host    string
	Port    int
	Peers   []string
	APIHost string
	APIPort int

	MonitoringPort int

	PersistenceDir     string
	PersistenceBackend string // "file" (default), "badger", "leveldb"
	RollbackHistory    int

	Verbosity int

	ChainConfig      string
	LedgerConfig     string
	HydraScriptsTxId string

	OwnKey             crypto.KeyPair
	OtherParties       []party.Party
	ContestationPeriod time.Duration
	ReqTxTTL           int
}

// InitEnvironment builds the Environment head logic is invoked with,
// exactly as §6 describes: env = initEnvironment(opts). It never changes
// across the life of the process.
func InitEnvironment(opts RunOptions, ledg ledger.Ledger) headlogic.Environment {
	self := party.Party{VKey: party.VerificationKey(append([]byte(nil), opts.OwnKey.Public...))}
	ttl := opts.ReqTxTTL
	if ttl <= 0 {
		ttl = network.DefaultReqTxTTL
	}
	return headlogic.Environment{
		Party:           self,
		OtherParties:    opts.OtherParties,
		Ledger:          ledg,
		Crypto:          crypto.Ed25519{Key: opts.OwnKey},
		Verifier:        crypto.Ed25519{},
		ReqTxTTLInitial: ttl,
	}
}

// OpenStore picks the persistence backend named by opts.PersistenceBackend,
// defaulting to the file-based store.
func OpenStore(opts RunOptions) (persistence.Store, error) {
	switch opts.PersistenceBackend {
	case "badger":
		return persistence.NewBadgerStore(opts.PersistenceDir)
	case "leveldb":
		return persistence.NewLevelDBStore(opts.PersistenceDir)
	default:
		return persistence.NewFileStore(opts.PersistenceDir)
	}
}

// rollbackHistory resolves the configured ring depth, falling back to
// headstate.DefaultMaxHistory (the Open Question decided in DESIGN.md).
func rollbackHistory(opts RunOptions) int {
	if opts.RollbackHistory <= 0 {
		return headstate.DefaultMaxHistory
	}
	return opts.RollbackHistory
}
