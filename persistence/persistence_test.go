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

package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/snapshot"
)

func samplePersisted(t *testing.T) headstate.Persisted {
	kp1, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	p1 := party.Party{VKey: party.VerificationKey(kp1.Public)}
	p2 := party.Party{VKey: party.VerificationKey(kp2.Public)}
	params := party.Parameters{Parties: party.NewSet(p1, p2), ContestationPeriod: 10 * time.Second}

	in := ledger.TxIn{TxId: "alice", Index: 0}
	utxo := ledger.NewUTxO(map[ledger.TxIn]ledger.TxOut{in: {Address: "alice", Value: 100}})

	sigs := crypto.NewMultiSignature()
	sigs.Add(p1, crypto.Signature("sig1"))
	sigs.Add(p2, crypto.Signature("sig2"))

	state := headstate.State{
		Phase:  headstate.PhaseOpen,
		HeadId: party.HeadId([]byte("head-1")),
		Params: params,
		Coordinated: headstate.CoordinatedState{
			InitialUTxO:       utxo,
			SeenUTxO:          utxo,
			ConfirmedSnapshot: snapshot.NewConfirmed(snapshot.Snapshot{Number: 1, UTxO: utxo}, sigs),
		},
		ChainState: chain.State{Point: "block-5", UTxO: utxo},
	}

	return headstate.Persisted{
		Current:    state,
		History:    []headstate.Checkpoint{{State: state, ChainPoint: "block-4"}},
		MaxHistory: 10,
	}
}

// TestFileStoreRoundTrip exercises Testable Property 2: load(save(s)) ==
// Some(s) for a representative reachable HeadState.
func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	want := samplePersisted(t)
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.Current.Phase, got.Current.Phase)
	assert.Equal(t, want.Current.HeadId, got.Current.HeadId)
	assert.True(t, want.Current.Coordinated.ConfirmedSnapshot.CurrentUTxO().Equal(got.Current.Coordinated.ConfirmedSnapshot.CurrentUTxO()))
	assert.Equal(t, want.Current.Params.Parties.Len(), got.Current.Params.Parties.Len())
	assert.Equal(t, want.Current.Params.ContestationPeriod, got.Current.Params.ContestationPeriod)
	assert.Len(t, got.History, 1)
	assert.Equal(t, "block-4", got.History[0].ChainPoint)
}

// TestFileStoreLoadOnEmptyDirReturnsNone matches §4.2's load contract: an
// untouched directory yields no error and no state.
func TestFileStoreLoadOnEmptyDirReturnsNone(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, got)
}

// TestFileStoreSaveOverwritesPriorState confirms a second Save replaces
// the first atomically rather than appending.
func TestFileStoreSaveOverwritesPriorState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	first := headstate.Persisted{Current: headstate.Idle(chain.State{Point: "genesis"})}
	require.NoError(t, store.Save(first))

	second := headstate.Persisted{Current: headstate.Idle(chain.State{Point: "block-1"})}
	require.NoError(t, store.Save(second))

	got, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "block-1", got.Current.ChainState.Point)
}
