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
	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
)

// stepClient implements the client-driven transition table in §4.3.1. Any
// precondition miss falls through to commandFailed with no state change.
func stepClient(env Environment, state headstate.State, in ClientInput) Outcome {
	cmd := in.Command
	switch cmd.Kind {
	case CmdInit:
		if state.Phase != headstate.PhaseIdle {
			return commandFailed(state, cmd)
		}
		// The seed UTxO and head parameters are supplied out of band by
		// the chain collaborator when it constructs InitTx; head logic
		// only requests the post.
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostInit})},
		}

	case CmdCommit:
		if state.Phase != headstate.PhaseInitial {
			return commandFailed(state, cmd)
		}
		key := env.Party.VKey.String()
		if _, already := state.Committed[key]; already {
			return commandFailed(state, cmd)
		}
		for _, out := range cmd.UTxO.Entries() {
			if out.Legacy {
				return Outcome{
					NewState: state,
					Effects:  []Effect{clientEffect(ServerOutput{Tag: TagCommandFailed, Reason: ledger.ErrUnsupportedLegacyOutput.Error(), FailedInput: cmd})},
				}
			}
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostCommit, Committer: env.Party, UTxO: cmd.UTxO})},
		}

	case CmdAbort:
		if state.Phase != headstate.PhaseInitial {
			return commandFailed(state, cmd)
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostAbort, Committed: state.Committed})},
		}

	case CmdNewTx:
		if state.Phase != headstate.PhaseOpen {
			return commandFailed(state, cmd)
		}
		next := state.Clone()
		newUTxO, err := env.Ledger.ApplyTx(next.Coordinated.SeenUTxO, cmd.Tx)
		if err != nil {
			return Outcome{
				NewState: state,
				Effects:  []Effect{clientEffect(ServerOutput{Tag: TagTxInvalid, Reason: err.Error()})},
			}
		}
		next.Coordinated.SeenUTxO = newUTxO
		next.Coordinated.SeenTxs = append(next.Coordinated.SeenTxs, cmd.Tx)
		next.Coordinated.AllTxs = append(next.Coordinated.AllTxs, cmd.Tx)
		next.Coordinated.LocalTxs = append(next.Coordinated.LocalTxs, cmd.Tx)
		effects := []Effect{
			netBroadcast(NetworkMsg{Kind: MsgReqTx, Tx: cmd.Tx}),
			clientEffect(ServerOutput{Tag: TagTxValid}),
		}
		// This party may be the leader for the next snapshot number; a
		// freshly submitted local tx can be what unblocks initiation.
		var initiateEffects []Effect
		next, initiateEffects = maybeInitiateSnapshot(env, next)
		effects = append(effects, initiateEffects...)
		return Outcome{
			NewState: next,
			Effects:  effects,
		}

	case CmdGetUTxO:
		if state.Phase != headstate.PhaseOpen {
			return commandFailed(state, cmd)
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{clientEffect(ServerOutput{Tag: TagGetUTxOResponse, UTxO: state.Coordinated.ConfirmedSnapshot.CurrentUTxO()})},
		}

	case CmdClose:
		if state.Phase != headstate.PhaseOpen {
			return commandFailed(state, cmd)
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostClose, Confirmed: state.Coordinated.ConfirmedSnapshot})},
		}

	case CmdContest:
		if state.Phase != headstate.PhaseClosed {
			return commandFailed(state, cmd)
		}
		// Only contest with a strictly higher snapshot than what is
		// currently posted on chain.
		if state.Closed.LocalConfirmedSnapshot.Number() <= state.Closed.ConfirmedSnapshot.Number() {
			return commandFailed(state, cmd)
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostContest, Confirmed: state.Closed.LocalConfirmedSnapshot})},
		}

	case CmdFanout:
		if state.Phase != headstate.PhaseClosed || !state.Closed.ReadyToFanout {
			return commandFailed(state, cmd)
		}
		return Outcome{
			NewState: state,
			Effects:  []Effect{onChainEffect(chain.PostChainTx{Kind: chain.PostFanout, FanoutUTxO: state.Closed.ConfirmedSnapshot.CurrentUTxO()})},
		}

	default:
		return commandFailed(state, cmd)
	}
}

func commandFailed(state headstate.State, cmd ClientCommand) Outcome {
	return Outcome{
		NewState: state,
		Effects:  []Effect{clientEffect(ServerOutput{Tag: TagCommandFailed, FailedInput: cmd})},
	}
}
