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

package headlogic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/klaytn/hnode/ledger"
)

func TestStepReqTxAppliesValidTxAndAcks(t *testing.T) {
	p1, _, params := newTestHead(t)
	aliceIn, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	tx := ledger.Tx{Id: "tx1", Inputs: []ledger.TxIn{aliceIn}, Outputs: []ledger.TxOut{{Address: "bob", Value: 100}}}
	out := stepNetwork(p1.env, state, NetworkInput{Msg: NetworkMsg{Kind: MsgReqTx, Tx: tx}, TTL: 5})

	_, ok := findClientTag(out.Effects, TagTxValid)
	assert.True(t, ok)
	assert.Len(t, out.NewState.Coordinated.SeenTxs, 1)
	assert.Len(t, out.NewState.Coordinated.AllTxs, 1)
}

func TestStepReqTxRequeuesWhileTTLRemainsThenDrops(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	unknownTx := ledger.Tx{Id: "tx1", Inputs: []ledger.TxIn{{TxId: "ghost", Index: 0}}}

	out := stepNetwork(p1.env, state, NetworkInput{Msg: NetworkMsg{Kind: MsgReqTx, Tx: unknownTx}, TTL: 1})
	effect, ok := findEffect(out.Effects, EffectRequeueNetwork)
	assert.True(t, ok)
	assert.Equal(t, 0, effect.Requeue.TTL)
	assert.Equal(t, state, out.NewState, "state must not change while the tx is still pending applicability")

	exhausted := stepNetwork(p1.env, state, NetworkInput{Msg: NetworkMsg{Kind: MsgReqTx, Tx: unknownTx}, TTL: 0})
	_, invalid := findClientTag(exhausted.Effects, TagTxInvalid)
	assert.True(t, invalid)
	_, requeued := findEffect(exhausted.Effects, EffectRequeueNetwork)
	assert.False(t, requeued)
}

func TestStepReqSnRejectsNonLeaderProposal(t *testing.T) {
	p1, p2, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	notLeader := p1.party
	if params.Parties.Leader(1).Equal(p1.party) {
		notLeader = p2.party
	}

	out := stepReqSn(p1.env, state, NetworkMsg{Kind: MsgReqSn, Leader: notLeader, Number: 1})
	assert.Equal(t, state, out.NewState)
	assert.Empty(t, out.Effects)
}

// TestFullSnapshotRound walks the coordinated snapshot protocol to
// completion between two simulated parties, mirroring S1's NewTx →
// ReqTx → ReqSn → AckSn sequence, and checks both parties converge on the
// same confirmed snapshot.
func TestFullSnapshotRound(t *testing.T) {
	p1, p2, params := newTestHead(t)
	aliceIn, seed := seedUTxO("alice", 100)

	s1 := openState(nil, params, seed)
	s2 := openState(nil, params, seed)

	tx := ledger.Tx{Id: "tx1", Inputs: []ledger.TxIn{aliceIn}, Outputs: []ledger.TxOut{{Address: "bob", Value: 100}}}

	leader := p1
	follower := p2
	if !params.Parties.Leader(1).Equal(p1.party) {
		leader, follower = p2, p1
	}
	leaderState, followerState := s1, s2
	if leader.party.Equal(p2.party) {
		leaderState, followerState = s2, s1
	}

	// Leader submits the tx locally.
	newTxOutcome := stepClient(leader.env, leaderState, ClientInput{Command: ClientCommand{Kind: CmdNewTx, Tx: tx}})
	leaderState = newTxOutcome.NewState

	var reqSnMsg, ackSnMsg NetworkMsg
	for _, e := range newTxOutcome.Effects {
		if e.Kind == EffectNetworkBroadcast {
			switch e.Broadcast.Kind {
			case MsgReqSn:
				reqSnMsg = e.Broadcast
			case MsgAckSn:
				ackSnMsg = e.Broadcast
			}
		}
	}

	// Follower receives the ReqTx, recording the tx.
	reqTxEffect, ok := findEffect(newTxOutcome.Effects, EffectNetworkBroadcast)
	assert.True(t, ok)
	followerOutcome := stepNetwork(follower.env, followerState, NetworkInput{Msg: NetworkMsg{Kind: MsgReqTx, Tx: reqTxEffect.Broadcast.Tx}, TTL: 5})
	followerState = followerOutcome.NewState

	// Follower then receives the leader's ReqSn proposal and acks it.
	reqSnOutcome := stepNetwork(follower.env, followerState, NetworkInput{Msg: reqSnMsg})
	followerState = reqSnOutcome.NewState
	assert.NotNil(t, followerState.Coordinated.SeenSnapshot)
	followerAck, ok := findEffect(reqSnOutcome.Effects, EffectNetworkBroadcast)
	assert.True(t, ok)
	assert.Equal(t, MsgAckSn, followerAck.Broadcast.Kind)

	// Leader receives the follower's AckSn (already has its own self-ack
	// recorded via maybeInitiateSnapshot).
	leaderAckOutcome := stepNetwork(leader.env, leaderState, NetworkInput{Msg: followerAck.Broadcast})
	leaderState = leaderAckOutcome.NewState
	_, leaderConfirmed := findClientTag(leaderAckOutcome.Effects, TagSnapshotConfirmed)
	assert.True(t, leaderConfirmed)
	assert.Equal(t, uint64(1), leaderState.Coordinated.ConfirmedSnapshot.Number())

	// Follower receives the leader's self AckSn and also confirms.
	followerAckOutcome := stepNetwork(follower.env, followerState, NetworkInput{Msg: ackSnMsg})
	followerState = followerAckOutcome.NewState
	_, followerConfirmed := findClientTag(followerAckOutcome.Effects, TagSnapshotConfirmed)
	assert.True(t, followerConfirmed)
	assert.Equal(t, uint64(1), followerState.Coordinated.ConfirmedSnapshot.Number())

	assert.True(t, leaderState.Coordinated.ConfirmedSnapshot.CurrentUTxO().Equal(followerState.Coordinated.ConfirmedSnapshot.CurrentUTxO()),
		"both parties must converge on the same confirmed UTxO")
}

func TestStepAckSnDropsUnverifiableSignature(t *testing.T) {
	p1, p2, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	// Seed a pending snapshot as if a ReqSn had just been accepted.
	reqSnOutcome := stepReqSn(p1.env, state, NetworkMsg{Kind: MsgReqSn, Leader: params.Parties.Leader(1), Number: 1})
	state = reqSnOutcome.NewState

	forged := stepAckSn(p1.env, state, NetworkMsg{Kind: MsgAckSn, Acker: p2.party, SnapshotSig: []byte("not-a-real-signature"), AckedNumber: 1})
	assert.False(t, forged.NewState.Coordinated.SeenSnapshot.Sigs.Has(p2.party), "an unverifiable AckSn must never be recorded")
}
