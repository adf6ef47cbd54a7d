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

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/snapshot"
)

func TestClientInitRequestsPostInit(t *testing.T) {
	p1, _, _ := newTestHead(t)
	state := headstate.Idle(chain.State{})

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdInit}})

	assert.Equal(t, headstate.PhaseIdle, out.NewState.Phase)
	effect, ok := findEffect(out.Effects, EffectOnChain)
	assert.True(t, ok)
	assert.Equal(t, chain.PostInit, effect.OnChain.Kind)
}

func TestClientInitWrongPhaseFails(t *testing.T) {
	p1, _, _ := newTestHead(t)
	state := headstate.State{Phase: headstate.PhaseOpen}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdInit}})

	_, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok)
	assert.Equal(t, headstate.PhaseOpen, out.NewState.Phase)
}

func TestClientCommitRejectsSecondCommitFromSamePartyLocally(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := headstate.State{
		Phase:     headstate.PhaseInitial,
		Params:    params,
		Committed: map[string]ledger.UTxO{p1.env.Party.VKey.String(): seed},
	}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdCommit, UTxO: seed}})

	_, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok, "committing twice from the same party must fail locally without touching the chain")
}

func TestClientCommitRejectsLegacyOutput(t *testing.T) {
	p1, _, params := newTestHead(t)
	state := headstate.State{Phase: headstate.PhaseInitial, Params: params, Committed: map[string]ledger.UTxO{}}
	legacy := ledger.NewUTxO(map[ledger.TxIn]ledger.TxOut{
		{TxId: "alice", Index: 0}: {Address: "alice", Value: 10, Legacy: true},
	})

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdCommit, UTxO: legacy}})

	out2, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok)
	assert.Equal(t, ledger.ErrUnsupportedLegacyOutput.Error(), out2.Reason)
	_, onChain := findEffect(out.Effects, EffectOnChain)
	assert.False(t, onChain, "a rejected commit must never reach the chain")
}

func TestClientCommitPostsCommitTx(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := headstate.State{Phase: headstate.PhaseInitial, Params: params, Committed: map[string]ledger.UTxO{}}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdCommit, UTxO: seed}})

	effect, ok := findEffect(out.Effects, EffectOnChain)
	assert.True(t, ok)
	assert.Equal(t, chain.PostCommit, effect.OnChain.Kind)
	assert.True(t, p1.env.Party.Equal(effect.OnChain.Committer))
}

func TestClientNewTxInvalidTxReportsTxInvalid(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	badTx := ledger.Tx{Id: "tx1", Inputs: []ledger.TxIn{{TxId: "nobody", Index: 9}}}
	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdNewTx, Tx: badTx}})

	_, ok := findClientTag(out.Effects, TagTxInvalid)
	assert.True(t, ok)
	assert.Equal(t, state, out.NewState, "an invalid tx must not mutate coordinated state")
}

func TestClientNewTxValidBroadcastsAndMayInitiateSnapshot(t *testing.T) {
	p1, p2, params := newTestHead(t)
	aliceIn, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	tx := ledger.Tx{Id: "tx1", Inputs: []ledger.TxIn{aliceIn}, Outputs: []ledger.TxOut{{Address: "bob", Value: 100}}}

	leader := params.Parties.Leader(1)
	var actingAs testParty
	if leader.Equal(p1.party) {
		actingAs = p1
	} else {
		actingAs = p2
	}

	out := stepClient(actingAs.env, state, ClientInput{Command: ClientCommand{Kind: CmdNewTx, Tx: tx}})

	_, reqTx := findEffect(out.Effects, EffectNetworkBroadcast)
	assert.True(t, reqTx)
	_, valid := findClientTag(out.Effects, TagTxValid)
	assert.True(t, valid)

	// The acting party is the leader for snapshot 1 and just added a
	// local tx, so initiation fires: a ReqSn and a self AckSn, on top of
	// the ReqTx broadcast and the TxValid client effect.
	broadcasts := 0
	for _, e := range out.Effects {
		if e.Kind == EffectNetworkBroadcast {
			broadcasts++
		}
	}
	assert.Equal(t, 3, broadcasts, "ReqTx + ReqSn + self AckSn")
	assert.NotNil(t, out.NewState.Coordinated.SeenSnapshot, "the leader must track its own pending snapshot")
	assert.True(t, out.NewState.Coordinated.SeenSnapshot.Sigs.Has(actingAs.party))
}

func TestClientGetUTxOReturnsConfirmedSnapshot(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdGetUTxO}})

	resp, ok := findClientTag(out.Effects, TagGetUTxOResponse)
	assert.True(t, ok)
	assert.True(t, resp.UTxO.Equal(seed))
}

func TestClientCloseWrongPhaseFails(t *testing.T) {
	p1, _, _ := newTestHead(t)
	state := headstate.State{Phase: headstate.PhaseInitial}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdClose}})

	_, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok)
}

func TestClientContestRequiresStrictlyHigherLocalSnapshot(t *testing.T) {
	p1, _, _ := newTestHead(t)
	same := uint64(3)
	state := headstate.State{
		Phase: headstate.PhaseClosed,
		Closed: headstate.ClosedState{
			ConfirmedSnapshot:      snapshot.NumberOnly(same),
			LocalConfirmedSnapshot: snapshot.NumberOnly(same),
		},
	}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdContest}})

	_, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok, "contesting with a snapshot no higher than what's posted must fail")
}

func TestClientFanoutRequiresReadyToFanout(t *testing.T) {
	p1, _, _ := newTestHead(t)
	state := headstate.State{Phase: headstate.PhaseClosed, Closed: headstate.ClosedState{ReadyToFanout: false}}

	out := stepClient(p1.env, state, ClientInput{Command: ClientCommand{Kind: CmdFanout}})

	_, ok := findClientTag(out.Effects, TagCommandFailed)
	assert.True(t, ok)
}
