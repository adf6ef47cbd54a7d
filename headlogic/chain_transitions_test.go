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
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/snapshot"
)

func TestEndToEndHappyPathS1(t *testing.T) {
	p1, p2, params := newTestHead(t)
	now := time.Now()

	idle := headstate.Persisted{Current: headstate.Idle(chain.State{})}

	initObs := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedInit, HeadId: []byte("H"), Params: params}}
	afterInit, effects := stepChain(p1.env, idle, ChainInput{Kind: ChainObservation, Observation: initObs})
	_, ok := findClientTag(effects, TagHeadIsInitializing)
	assert.True(t, ok)
	assert.Equal(t, headstate.PhaseInitial, afterInit.Current.Phase)

	_, aliceUTxO := seedUTxO("alice", 100)
	_, bobUTxO := seedUTxO("bob", 50)

	commit1 := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedCommit, Committer: p1.party, CommittedUTxO: aliceUTxO}}
	afterCommit1, _ := stepChain(p1.env, afterInit, ChainInput{Kind: ChainObservation, Observation: commit1})
	assert.Equal(t, headstate.PhaseInitial, afterCommit1.Current.Phase, "only one of two parties has committed")

	commit2 := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedCommit, Committer: p2.party, CommittedUTxO: bobUTxO}}
	afterCommit2, commit2Effects := stepChain(p1.env, afterCommit1, ChainInput{Kind: ChainObservation, Observation: commit2})
	onChain, ok := findEffect(commit2Effects, EffectOnChain)
	assert.True(t, ok)
	assert.Equal(t, chain.PostCollectCom, onChain.OnChain.Kind, "the second commit must trigger CollectCom once every party has committed")

	collectCom := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedCollectCom}}
	afterOpen, openEffects := stepChain(p1.env, afterCommit2, ChainInput{Kind: ChainObservation, Observation: collectCom})
	_, openOk := findClientTag(openEffects, TagHeadIsOpen)
	assert.True(t, openOk)
	assert.Equal(t, headstate.PhaseOpen, afterOpen.Current.Phase)
	assert.Equal(t, uint64(100+50), totalValue(afterOpen.Current.Coordinated.ConfirmedSnapshot.CurrentUTxO()))

	deadline := now.Add(10 * time.Second)
	closeObs := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedClose, SnapshotNumber: 0, ContestDeadline: deadline}}
	afterClose, closeEffects := stepChain(p1.env, afterOpen, ChainInput{Kind: ChainObservation, Observation: closeObs})
	_, closeOk := findClientTag(closeEffects, TagHeadIsClosed)
	assert.True(t, closeOk)
	delay, hasDelay := findEffect(closeEffects, EffectDelay)
	assert.True(t, hasDelay)
	assert.Equal(t, deadline, delay.DelayUntil)
	assert.Equal(t, headstate.PhaseClosed, afterClose.Current.Phase)

	tooEarly, tickEffects := stepChain(p1.env, afterClose, ChainInput{Kind: ChainTick, Tick: chain.Tick{Now: now}})
	assert.Empty(t, tickEffects)
	assert.False(t, tooEarly.Current.Closed.ReadyToFanout)

	afterTick, readyEffects := stepChain(p1.env, afterClose, ChainInput{Kind: ChainTick, Tick: chain.Tick{Now: deadline.Add(time.Millisecond)}})
	_, readyOk := findClientTag(readyEffects, TagReadyToFanout)
	assert.True(t, readyOk)
	assert.True(t, afterTick.Current.Closed.ReadyToFanout)

	fanoutObs := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedFanout}}
	afterFanout, fanoutEffects := stepChain(p1.env, afterTick, ChainInput{Kind: ChainObservation, Observation: fanoutObs})
	_, finalOk := findClientTag(fanoutEffects, TagHeadIsFinalized)
	assert.True(t, finalOk)
	assert.Equal(t, headstate.PhaseFinal, afterFanout.Current.Phase)
}

func TestCloseCheckpointsForRollback(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	open := headstate.Persisted{Current: openState(nil, params, seed)}

	closeObs := chain.Observation{
		ObservedTx:    chain.Event{Kind: chain.EventObservedClose, SnapshotNumber: 0, ContestDeadline: time.Now().Add(10 * time.Second)},
		NewChainState: chain.State{Point: "block-10"},
	}
	after, _ := stepChain(p1.env, open, ChainInput{Kind: ChainObservation, Observation: closeObs})

	assert.Len(t, after.History, 1, "an Open->Closed transition must be checkpointed")
	assert.Equal(t, headstate.PhaseOpen, after.History[0].State.Phase)
}

func TestRollbackRestoresCheckpointedState(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	open := headstate.Persisted{Current: openState(nil, params, seed)}
	open.Current.ChainState = chain.State{Point: "block-9"}

	closeObs := chain.Observation{
		ObservedTx:    chain.Event{Kind: chain.EventObservedClose, SnapshotNumber: 0, ContestDeadline: time.Now().Add(10 * time.Second)},
		NewChainState: chain.State{Point: "block-10"},
	}
	closed, _ := stepChain(p1.env, open, ChainInput{Kind: ChainObservation, Observation: closeObs})
	assert.Equal(t, headstate.PhaseClosed, closed.Current.Phase)

	rolledBack, rbEffects := stepChain(p1.env, closed, ChainInput{Kind: ChainRollback, Rollback: chain.Rollback{ToChainState: chain.State{Point: "block-9"}}})
	_, ok := findClientTag(rbEffects, TagRolledBack)
	assert.True(t, ok)
	assert.Equal(t, headstate.PhaseOpen, rolledBack.Current.Phase, "a rollback past the Close must restore the pre-close Open state")
}

func TestContestExtendsDeadlineAndTracksHigherSnapshot(t *testing.T) {
	p1, _, params := newTestHead(t)
	_, seed := seedUTxO("alice", 100)
	state := openState(nil, params, seed)
	state.Phase = headstate.PhaseClosed
	deadline := time.Now().Add(10 * time.Second)
	state.Closed = headstate.ClosedState{ConfirmedSnapshot: snapshot.NumberOnly(0), ContestationDeadline: deadline}
	state.Params = params

	persisted := headstate.Persisted{Current: state}
	contestObs := chain.Observation{ObservedTx: chain.Event{Kind: chain.EventObservedContest, SnapshotNumber: 1}}
	after, effects := stepChain(p1.env, persisted, ChainInput{Kind: ChainObservation, Observation: contestObs})

	_, ok := findClientTag(effects, TagHeadIsContested)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), after.Current.Closed.ConfirmedSnapshot.Number())
	assert.True(t, after.Current.Closed.ContestationDeadline.After(deadline), "a contest must push the deadline out by another full period")
}

func totalValue(u ledger.UTxO) uint64 {
	var total uint64
	for _, out := range u.Entries() {
		total += out.Value
	}
	return total
}

