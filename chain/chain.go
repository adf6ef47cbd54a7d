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

// Package chain holds the wire-level shape of the Chain collaborator
// (§1): the events the chain observer may deliver into the input queue,
// and the transaction requests head logic may ask to have posted. Neither
// side is implemented here; the core only needs these shapes and treats
// the chain itself as an external collaborator.
package chain

import (
	"time"

	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/snapshot"
)

// State is the opaque, latest observed chain-side view: the UTxOs
// relevant to the head's script addresses, plus whatever point/slot
// reference is needed to detect and apply rollbacks. The core never
// inspects its contents, only compares or replaces it wholesale.
type State struct {
	Point string // opaque chain point identifier (e.g. block hash/slot)
	UTxO  ledger.UTxO
}

// Equal reports whether two chain state snapshots refer to the same
// point; only the Point is compared.
func (s State) Equal(other State) bool {
	return s.Point == other.Point
}

// Event is the sum type of on-chain observations the adapter may enqueue.
// Observation payloads are exhaustive per §4.3.3: Init, Commit,
// CollectCom, Abort, Close, Contest, Fanout. Rollback and Tick are
// separate ChainInput variants handled alongside Observation, not
// sub-cases of it.
type EventKind int

const (
	EventObservedInit EventKind = iota
	EventObservedCommit
	EventObservedCollectCom
	EventObservedAbort
	EventObservedClose
	EventObservedContest
	EventObservedFanout
)

// Event carries one observed on-chain transaction plus the type-specific
// payload needed by the corresponding head logic transition.
type Event struct {
	Kind EventKind

	// EventObservedInit
	HeadId   party.HeadId
	Params   party.Parameters
	SeedTxIn ledger.TxIn

	// EventObservedCommit
	Committer   party.Party
	CommittedUTxO ledger.UTxO

	// EventObservedClose / EventObservedContest
	SnapshotNumber uint64
	ContestDeadline time.Time

	// EventObservedFanout / EventObservedAbort: no extra payload beyond the HeadId field above.
}

// Observation is a ChainInput variant: one observed transaction plus the
// chain state that results from folding it in.
type Observation struct {
	ObservedTx   Event
	NewChainState State
}

// Rollback is a ChainInput variant requesting the node revert to an
// earlier chain point.
type Rollback struct {
	ToChainState State
}

// Tick is a ChainInput (and independently, a periodically re-enqueued
// NetworkInput-adjacent) deadline check carrying the current wall clock.
type Tick struct {
	Now time.Time
}

// PostChainTx is the sum type of transactions head logic may ask the
// Chain collaborator to construct and submit. The core only ever
// constructs these as OnChainEffect payloads; it never builds or signs
// the underlying chain transaction itself (§1 scope).
type PostKind int

const (
	PostInit PostKind = iota
	PostCommit
	PostAbort
	PostCollectCom
	PostClose
	PostContest
	PostFanout
)

type PostChainTx struct {
	Kind PostKind

	// PostInit
	Params   party.Parameters
	SeedTxIn ledger.TxIn

	// PostCommit
	Committer party.Party
	UTxO      ledger.UTxO

	// PostAbort
	Committed map[string]ledger.UTxO

	// PostClose / PostContest
	Confirmed snapshot.Confirmed

	// PostFanout
	FanoutUTxO ledger.UTxO
}

// PostTxOnChainFailed is the event the chain adapter re-enqueues when a
// Post call fails asynchronously (§4.5, §7).
type PostTxOnChainFailed struct {
	Tx  PostChainTx
	Err error
}
