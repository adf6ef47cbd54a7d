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
)

func chainTickFrom(in Input) chain.Tick {
	return chain.Tick{Now: in.Tick}
}

// Step is the single entry point of the head logic state machine: a pure
// function of (env, persisted, input) to (persisted', effects). It never
// performs I/O and never mutates anything reachable from its arguments;
// every effect the caller must perform is returned, never executed here.
func Step(env Environment, persisted headstate.Persisted, in Input) (headstate.Persisted, []Effect) {
	switch in.Kind {
	case InputClient:
		outcome := stepClient(env, persisted.Current, in.Client)
		return withCurrent(persisted, outcome.NewState), outcome.Effects
	case InputNetwork:
		outcome := stepNetwork(env, persisted.Current, in.Network)
		return withCurrent(persisted, outcome.NewState), outcome.Effects
	case InputChain:
		return stepChain(env, persisted, in.Chain)
	case InputTick:
		return stepChain(env, persisted, ChainInput{Kind: ChainTick, Tick: chainTickFrom(in)})
	case InputPostFailed:
		effect := clientEffect(ServerOutput{
			Tag:         TagPostTxOnChainFailed,
			Reason:      in.PostFailed.Err.Error(),
			FailedTx:    in.PostFailed.Tx,
		})
		return persisted, []Effect{effect}
	case InputPeerStatus:
		tag := TagPeerDisconnected
		if in.PeerStatus.Connected {
			tag = TagPeerConnected
		}
		return persisted, []Effect{clientEffect(ServerOutput{Tag: tag, Peer: in.PeerStatus.Peer})}
	default:
		return persisted, nil
	}
}

func withCurrent(persisted headstate.Persisted, s headstate.State) headstate.Persisted {
	return headstate.Persisted{Current: s, History: persisted.History, MaxHistory: persisted.MaxHistory}
}
