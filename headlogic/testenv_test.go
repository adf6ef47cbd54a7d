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

	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/snapshot"
)

// testParty mints a deterministic ed25519 identity and an Environment
// built around it, for one side of a simulated multi-party head.
type testParty struct {
	env   Environment
	party party.Party
}

// newTestHead builds a two-party head environment (P1, P2 in canonical
// verification-key order) with a 10s contestation period, matching the
// walkthroughs in the scenario table. It returns both parties' testParty
// and the shared party.Parameters.
func newTestHead(t interface{ Fatalf(string, ...interface{}) }) (testParty, testParty, party.Parameters) {
	kp1, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key 1: %v", err)
	}
	kp2, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key 2: %v", err)
	}
	p1 := party.Party{VKey: party.VerificationKey(kp1.Public)}
	p2 := party.Party{VKey: party.VerificationKey(kp2.Public)}
	parties := party.NewSet(p1, p2)
	params := party.Parameters{Parties: parties, ContestationPeriod: 10 * time.Second}

	ed1 := crypto.Ed25519{Key: kp1}
	ed2 := crypto.Ed25519{Key: kp2}

	return testParty{
			env: Environment{
				Party:           p1,
				OtherParties:    []party.Party{p2},
				Ledger:          ledger.Simple{},
				Crypto:          ed1,
				Verifier:        ed1,
				ReqTxTTLInitial: 5,
			},
			party: p1,
		}, testParty{
			env: Environment{
				Party:           p2,
				OtherParties:    []party.Party{p1},
				Ledger:          ledger.Simple{},
				Crypto:          ed2,
				Verifier:        ed2,
				ReqTxTTLInitial: 5,
			},
			party: p2,
		}, params
}

// openState builds the Open-phase state both parties reach after a
// successful Init/Commit/CollectCom round, seeded with the given UTxO.
func openState(headId party.HeadId, params party.Parameters, seed ledger.UTxO) headstate.State {
	return headstate.State{
		Phase:  headstate.PhaseOpen,
		HeadId: headId,
		Params: params,
		Coordinated: headstate.CoordinatedState{
			InitialUTxO:       seed,
			SeenUTxO:          seed,
			ConfirmedSnapshot: snapshot.NewInitialConfirmed(seed),
		},
	}
}

func seedUTxO(owner string, value uint64) (ledger.TxIn, ledger.UTxO) {
	in := ledger.TxIn{TxId: owner, Index: 0}
	u := ledger.NewUTxO(map[ledger.TxIn]ledger.TxOut{
		in: {Address: owner, Value: value},
	})
	return in, u
}

func findEffect(effects []Effect, kind EffectKind) (Effect, bool) {
	for _, e := range effects {
		if e.Kind == kind {
			return e, true
		}
	}
	return Effect{}, false
}

func findClientTag(effects []Effect, tag ServerOutputTag) (ServerOutput, bool) {
	for _, e := range effects {
		if e.Kind == EffectClient && e.Client.Tag == tag {
			return e.Client, true
		}
	}
	return ServerOutput{}, false
}
