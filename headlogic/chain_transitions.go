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
	"time"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/snapshot"
)

// contestationExtension is the policy by which a Contest observation
// extends the contestation deadline: the full contestation period is
// added to the deadline passed in as now, which applyObservation's
// Contest case sets to the current deadline (an observation carries no time
// of its own). The spec leaves the exact rule to the on-chain script's
// enforcement (§9 Open Questions); this fixed additive rule is recorded
// as a decided Open Question in DESIGN.md.
func contestationExtension(period time.Duration, now time.Time) time.Time {
	return now.Add(period)
}

// stepChain dispatches the three ChainInput variants: Observation,
// Rollback, and Tick (§4.3.3).
func stepChain(env Environment, persisted headstate.Persisted, in ChainInput) (headstate.Persisted, []Effect) {
	switch in.Kind {
	case ChainObservation:
		return stepObservation(env, persisted, in.Observation)
	case ChainRollback:
		return stepRollback(persisted, in.Rollback)
	case ChainTick:
		return stepTick(persisted, in.Tick)
	default:
		return persisted, nil
	}
}

// stepObservation applies one observed on-chain event, per the mapping
// table in §4.3.3, and checkpoints the resulting state so a later
// Rollback can undo it.
func stepObservation(env Environment, persisted headstate.Persisted, obs chain.Observation) (headstate.Persisted, []Effect) {
	state := persisted.Current
	ev := obs.ObservedTx

	newState, effects, changed := applyObservation(env, state, ev)
	newState.ChainState = obs.NewChainState
	if !changed {
		return headstate.Persisted{Current: newState, History: persisted.History, MaxHistory: persisted.MaxHistory}, effects
	}
	checkpointed := persisted.Checkpoint()
	return headstate.Persisted{Current: newState, History: checkpointed.History, MaxHistory: persisted.MaxHistory}, effects
}

func applyObservation(env Environment, state headstate.State, ev chain.Event) (headstate.State, []Effect, bool) {
	switch ev.Kind {
	case chain.EventObservedInit:
		if state.Phase != headstate.PhaseIdle {
			return state, nil, false
		}
		if !ev.Params.Parties.Contains(env.Party) {
			// §4.3.4: an observed init whose parties set does not
			// contain self must be ignored.
			return state, nil, false
		}
		next := state
		next.Phase = headstate.PhaseInitial
		next.HeadId = ev.HeadId
		next.Params = ev.Params
		next.SeedTxIn = ev.SeedTxIn
		next.Committed = map[string]ledger.UTxO{}
		return next, []Effect{clientEffect(ServerOutput{Tag: TagHeadIsInitializing})}, true

	case chain.EventObservedCommit:
		if state.Phase != headstate.PhaseInitial {
			return state, nil, false
		}
		key := ev.Committer.VKey.String()
		if _, already := state.Committed[key]; already {
			// §8 Commit linearity: a second observation of the same
			// commit is a no-op.
			return state, nil, false
		}
		next := state
		next.Committed = make(map[string]ledger.UTxO, len(state.Committed)+1)
		for k, v := range state.Committed {
			next.Committed[k] = v
		}
		next.Committed[key] = ev.CommittedUTxO
		effects := []Effect{clientEffect(ServerOutput{Tag: TagCommitted, Party: ev.Committer, UTxO: ev.CommittedUTxO})}
		if len(next.Committed) == next.Params.Parties.Len() {
			effects = append(effects, onChainEffect(chain.PostChainTx{Kind: chain.PostCollectCom}))
		}
		return next, effects, true

	case chain.EventObservedCollectCom:
		if state.Phase != headstate.PhaseInitial {
			return state, nil, false
		}
		initialUTxO := ledger.Empty()
		for _, u := range state.Committed {
			initialUTxO = initialUTxO.Union(u)
		}
		next := state
		next.Phase = headstate.PhaseOpen
		next.Coordinated = headstate.CoordinatedState{
			InitialUTxO:       initialUTxO,
			SeenUTxO:          initialUTxO,
			ConfirmedSnapshot: snapshot.NewInitialConfirmed(initialUTxO),
		}
		return next, []Effect{clientEffect(ServerOutput{Tag: TagHeadIsOpen})}, true

	case chain.EventObservedAbort:
		if state.Phase != headstate.PhaseInitial || (len(ev.HeadId) > 0 && !ev.HeadId.Equal(state.HeadId)) {
			// §4.3.4: observing an abort that carries a different HeadId
			// than this party's head (or once the head is no longer
			// Initial) is ignored.
			return state, nil, false
		}
		finalUTxO := ledger.Empty()
		for _, u := range state.Committed {
			finalUTxO = finalUTxO.Union(u)
		}
		next := state
		next.Phase = headstate.PhaseFinal
		next.FinalUTxO = finalUTxO
		return next, []Effect{clientEffect(ServerOutput{Tag: TagHeadIsAborted, UTxO: finalUTxO})}, true

	case chain.EventObservedClose:
		if state.Phase != headstate.PhaseOpen {
			return state, nil, false
		}
		next := state
		next.Phase = headstate.PhaseClosed
		next.Closed = headstate.ClosedState{
			ConfirmedSnapshot:      snapshot.NumberOnly(ev.SnapshotNumber),
			LocalConfirmedSnapshot: state.Coordinated.ConfirmedSnapshot,
			ContestationDeadline:   ev.ContestDeadline,
			ReadyToFanout:          false,
		}
		delayIn := ChainInput{Kind: ChainTick, Tick: chain.Tick{Now: ev.ContestDeadline}}
		return next, []Effect{
			clientEffect(ServerOutput{Tag: TagHeadIsClosed, SnapshotNumber: ev.SnapshotNumber}),
			delayEffect(ev.ContestDeadline, delayIn),
		}, true

	case chain.EventObservedContest:
		if state.Phase != headstate.PhaseClosed {
			return state, nil, false
		}
		next := state
		if ev.SnapshotNumber > next.Closed.ConfirmedSnapshot.Number() {
			next.Closed.ConfirmedSnapshot = snapshot.NumberOnly(ev.SnapshotNumber)
		}
		next.Closed.ContestationDeadline = contestationExtension(next.Params.ContestationPeriod, next.Closed.ContestationDeadline)
		delayIn := ChainInput{Kind: ChainTick, Tick: chain.Tick{Now: next.Closed.ContestationDeadline}}
		return next, []Effect{
			clientEffect(ServerOutput{Tag: TagHeadIsContested, SnapshotNumber: ev.SnapshotNumber}),
			delayEffect(next.Closed.ContestationDeadline, delayIn),
		}, true

	case chain.EventObservedFanout:
		if state.Phase != headstate.PhaseClosed {
			return state, nil, false
		}
		finalUTxO := state.Closed.ConfirmedSnapshot.CurrentUTxO()
		if state.Closed.LocalConfirmedSnapshot.Number() == state.Closed.ConfirmedSnapshot.Number() {
			// The chain only reports a number for Close/Contest; when it
			// matches this party's own best snapshot, its locally held
			// UTxO content is authoritative.
			finalUTxO = state.Closed.LocalConfirmedSnapshot.CurrentUTxO()
		}
		next := state
		next.Phase = headstate.PhaseFinal
		next.FinalUTxO = finalUTxO
		return next, []Effect{clientEffect(ServerOutput{Tag: TagHeadIsFinalized, UTxO: finalUTxO})}, true

	default:
		return state, nil, false
	}
}

// stepRollback reverts to the most recent checkpoint whose chain point
// equals the rolled-back-to chain point, per §4.3.3's undo requirement.
// If no checkpoint carries exactly that point (for example because it has
// already been trimmed from the ring), the oldest remaining checkpoint is
// used as the best available recovery (a documented, configurable depth limit; see
// headstate.DefaultMaxHistory).
func stepRollback(persisted headstate.Persisted, rb chain.Rollback) (headstate.Persisted, []Effect) {
	restored, remainingHistory, _ := persisted.RevertTo(rb.ToChainState.Point)
	restored.ChainState = rb.ToChainState
	return headstate.Persisted{
		Current:    restored,
		History:    remainingHistory,
		MaxHistory: persisted.MaxHistory,
	}, []Effect{clientEffect(ServerOutput{Tag: TagRolledBack})}
}

// stepTick handles the periodic deadline check: once wall-clock reaches
// the contestation deadline, mark the head ready to fanout. A Tick fired
// for a Delay whose originating state is no longer Closed (e.g. the head
// advanced to Final via an earlier Fanout observation) is a no-op, per
// the cancellation rule in §5.
func stepTick(persisted headstate.Persisted, tick chain.Tick) (headstate.Persisted, []Effect) {
	state := persisted.Current
	if state.Phase != headstate.PhaseClosed {
		return persisted, nil
	}
	if tick.Now.Before(state.Closed.ContestationDeadline) {
		return persisted, nil
	}
	if state.Closed.ReadyToFanout {
		return persisted, nil
	}
	next := state
	next.Closed.ReadyToFanout = true
	return headstate.Persisted{Current: next, History: persisted.History, MaxHistory: persisted.MaxHistory},
		[]Effect{clientEffect(ServerOutput{Tag: TagReadyToFanout, SnapshotNumber: next.Closed.ConfirmedSnapshot.Number()})}
}
