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

// Package headlogic implements the deterministic head-logic state machine
// (C4): the pure step function (state, input) -> (state', effects). It is
// the only writer of HeadState and never performs I/O; every side effect
// is returned as a value for the node runtime to dispatch.
package headlogic

import (
	"time"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/snapshot"
)

// PeerStatus is a transport-level liveness change (§6's PeerConnected /
// PeerDisconnected outputs, supplemented per SPEC_FULL §12). It never
// mutates HeadState; Step turns it directly into a ClientEffect, the same
// pattern as InputPostFailed.
type PeerStatus struct {
	Peer      party.Party
	Connected bool
}

// Environment is supplied by the node at startup (built from RunOptions
// per §6) and never changes during the life of the process. Head logic
// receives it on every step call; it is not part of HeadState because it
// is not replayed from persisted history, only re-derived from config.
type Environment struct {
	Party        party.Party
	OtherParties []party.Party
	Ledger       ledger.Ledger
	Crypto       crypto.Ed25519
	Verifier     crypto.Verifier
	// ReqTxTTLInitial is carried from config but not read by head logic:
	// the TTL a received ReqTx starts with is assigned by network.Hub
	// (network.DefaultReqTxTTL), not taken from this field.
	ReqTxTTLInitial int
}

// ClientCommand is the sum type of inbound client commands (§4.3.1).
type ClientCommandKind int

const (
	CmdInit ClientCommandKind = iota
	CmdAbort
	CmdCommit
	CmdNewTx
	CmdGetUTxO
	CmdClose
	CmdContest
	CmdFanout
)

type ClientCommand struct {
	Kind ClientCommandKind
	UTxO ledger.UTxO // CmdCommit
	Tx   ledger.Tx   // CmdNewTx
}

// ClientInput wraps a command with the id of the client connection it
// came from. Head logic does not copy ClientId into the effects it
// returns, so ClientEffect deliveries, CommandFailed included, go to every
// API subscriber rather than only to the originating one.
type ClientInput struct {
	ClientId string
	Command  ClientCommand
}

// NetworkMsgKind is the sum type of peer protocol messages (§4.3.2, §6).
type NetworkMsgKind int

const (
	MsgReqTx NetworkMsgKind = iota
	MsgReqSn
	MsgAckSn
)

type NetworkMsg struct {
	Kind NetworkMsgKind

	// MsgReqTx
	Tx ledger.Tx

	// MsgReqSn
	Leader party.Party
	Number uint64
	Txs    []ledger.Tx

	// MsgAckSn
	Acker        party.Party
	SnapshotSig  crypto.Signature
	AckedNumber  uint64
}

// NetworkInput is a received, already-signature-checked-at-the-transport
// peer message; the TTL lets ReqTx decay per the bounded-retry rule.
type NetworkInput struct {
	Sender party.Party
	TTL    int
	Msg    NetworkMsg
}

// ChainInput wraps one of the three chain-driven variants (§4.3.3).
type ChainInputKind int

const (
	ChainObservation ChainInputKind = iota
	ChainRollback
	ChainTick
)

type ChainInput struct {
	Kind        ChainInputKind
	Observation chain.Observation
	Rollback    chain.Rollback
	Tick        chain.Tick
}

// Input is the sum type dequeued from the input queue (C1). Exactly one
// of the six payload fields is populated, discriminated by Kind.
type InputKind int

const (
	InputClient InputKind = iota
	InputNetwork
	InputChain
	InputTick
	// InputPostFailed carries a chain.PostTxOnChainFailed event back from
	// the chain adapter (§4.5, §7). It never mutates HeadState: the spec
	// requires no auto-retry, only client visibility.
	InputPostFailed
	// InputPeerStatus carries a PeerStatus change from the network Hub.
	InputPeerStatus
)

type Input struct {
	Kind       InputKind
	Client     ClientInput
	Network    NetworkInput
	Chain      ChainInput
	Tick       time.Time                 // InputTick: the periodic deadline-check tick
	PostFailed chain.PostTxOnChainFailed // InputPostFailed
	PeerStatus PeerStatus                // InputPeerStatus
}

// ServerOutput is the sum type of messages delivered to API subscribers
// (§6). Every output is stamped with Seq/Timestamp by the node runtime
// before delivery, not by head logic itself, so Seq always equals the
// causing input's id (Testable Property 8).
type ServerOutputTag string

const (
	TagHeadIsInitializing ServerOutputTag = "HeadIsInitializing"
	TagCommitted          ServerOutputTag = "Committed"
	TagHeadIsOpen          ServerOutputTag = "HeadIsOpen"
	TagHeadIsClosed        ServerOutputTag = "HeadIsClosed"
	TagHeadIsContested     ServerOutputTag = "HeadIsContested"
	TagReadyToFanout       ServerOutputTag = "ReadyToFanout"
	TagHeadIsAborted       ServerOutputTag = "HeadIsAborted"
	TagHeadIsFinalized     ServerOutputTag = "HeadIsFinalized"
	TagCommandFailed       ServerOutputTag = "CommandFailed"
	TagTxValid             ServerOutputTag = "TxValid"
	TagTxInvalid           ServerOutputTag = "TxInvalid"
	TagSnapshotConfirmed   ServerOutputTag = "SnapshotConfirmed"
	TagGetUTxOResponse     ServerOutputTag = "GetUTxOResponse"
	TagInvalidInput        ServerOutputTag = "InvalidInput"
	TagPostTxOnChainFailed ServerOutputTag = "PostTxOnChainFailed"
	TagRolledBack          ServerOutputTag = "RolledBack"
	TagPeerConnected       ServerOutputTag = "PeerConnected"
	TagPeerDisconnected    ServerOutputTag = "PeerDisconnected"
	TagGreetings           ServerOutputTag = "Greetings"
)

// ServerOutput is the payload of a ClientEffect. Fields are populated per
// Tag; unused fields are zero.
type ServerOutput struct {
	Tag ServerOutputTag

	Party          party.Party     // TagCommitted
	UTxO           ledger.UTxO     // TagCommitted, TagHeadIsAborted, TagHeadIsFinalized, TagGetUTxOResponse
	SnapshotNumber uint64          // TagHeadIsClosed, TagHeadIsContested, TagReadyToFanout
	Confirmed      snapshot.Confirmed // TagSnapshotConfirmed
	Reason         string          // TagTxInvalid, TagCommandFailed, TagInvalidInput, TagPostTxOnChainFailed
	FailedInput    interface{}     // TagCommandFailed
	FailedTx       chain.PostChainTx // TagPostTxOnChainFailed
	Peer           party.Party     // TagPeerConnected, TagPeerDisconnected
}

// Effect is the sum type of side effects a step may produce (§4.3).
type EffectKind int

const (
	EffectNetworkBroadcast EffectKind = iota
	EffectClient
	EffectOnChain
	EffectDelay
	// EffectRequeueNetwork asks the runtime to re-enqueue a NetworkInput
	// whose TTL has not yet been exhausted (§4.3.2 ReqTx handling, §5 TTL
	// bound). Requeueing is a queue-level action, not a state mutation,
	// so it is modeled as an effect rather than performed inside step.
	EffectRequeueNetwork
)

type Effect struct {
	Kind EffectKind

	Broadcast NetworkMsg        // EffectNetworkBroadcast
	Client    ServerOutput      // EffectClient
	OnChain   chain.PostChainTx // EffectOnChain

	// EffectDelay
	DelayUntil time.Time
	DelayEvent ChainInput // re-enqueued verbatim as an InputChain once DelayUntil is reached

	Requeue NetworkInput // EffectRequeueNetwork
}

func netBroadcast(msg NetworkMsg) Effect { return Effect{Kind: EffectNetworkBroadcast, Broadcast: msg} }
func clientEffect(out ServerOutput) Effect { return Effect{Kind: EffectClient, Client: out} }
func onChainEffect(tx chain.PostChainTx) Effect { return Effect{Kind: EffectOnChain, OnChain: tx} }
func delayEffect(until time.Time, event ChainInput) Effect {
	return Effect{Kind: EffectDelay, DelayUntil: until, DelayEvent: event}
}
func requeueEffect(in NetworkInput) Effect { return Effect{Kind: EffectRequeueNetwork, Requeue: in} }

// Outcome is the return value of Step: the new state and the ordered
// effects produced while reaching it.
type Outcome struct {
	NewState headstate.State
	Effects  []Effect
}

func unchanged(s headstate.State) Outcome { return Outcome{NewState: s} }
