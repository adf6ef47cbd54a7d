// Copyright 2019 The klaytn Authors
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

// Package snapshot implements the head's unanimous-agreement snapshot:
// its canonical, endian-fixed byte encoding (used both for signing and for
// the content hash embedded in that encoding) and the confirmed/pending
// states the coordinated snapshot protocol transitions between.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
)

// Snapshot is a numbered, monotone point in the coordinated ledger: the
// UTxO set after applying confirmedTxs, in order, to the previous
// snapshot's UTxO.
type Snapshot struct {
	Number       uint64
	UTxO         ledger.UTxO
	ConfirmedTxs []ledger.Tx
}

// CanonicalBytes is the protocol-fixed serialization signed and hashed by
// every party: headId ‖ number(big-endian u64) ‖ hash(utxo) ‖
// hash(confirmedTxs). The hash function (sha256) and field order are
// protocol constants; every party must agree on them bit-for-bit.
func (s Snapshot) CanonicalBytes(headId party.HeadId) []byte {
	var buf bytes.Buffer
	buf.Write(headId)
	var numBuf [8]byte
	binary.BigEndian.PutUint64(numBuf[:], s.Number)
	buf.Write(numBuf[:])
	utxoHash := hashUTxO(s.UTxO)
	buf.Write(utxoHash[:])
	txsHash := hashTxs(s.ConfirmedTxs)
	buf.Write(txsHash[:])
	return buf.Bytes()
}

// hashUTxO hashes a UTxO set deterministically: entries are sorted by
// their reference before hashing, since map iteration order is not
// canonical.
func hashUTxO(u ledger.UTxO) [32]byte {
	entries := u.Entries()
	refs := make([]ledger.TxIn, 0, len(entries))
	for in := range entries {
		refs = append(refs, in)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].TxId != refs[j].TxId {
			return refs[i].TxId < refs[j].TxId
		}
		return refs[i].Index < refs[j].Index
	})
	h := sha256.New()
	for _, in := range refs {
		out := entries[in]
		h.Write([]byte(in.TxId))
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], in.Index)
		h.Write(idx[:])
		h.Write([]byte(out.Address))
		var val [8]byte
		binary.BigEndian.PutUint64(val[:], out.Value)
		h.Write(val[:])
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// hashTxs hashes the ordered confirmed tx list; order is significant and
// preserved, unlike UTxO hashing.
func hashTxs(txs []ledger.Tx) [32]byte {
	h := sha256.New()
	for _, tx := range txs {
		h.Write([]byte(tx.Id))
		h.Write(tx.Body)
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// Initial builds the number-0 snapshot: post-commit UTxO, empty tx list.
func Initial(utxo ledger.UTxO) Snapshot {
	return Snapshot{Number: 0, UTxO: utxo, ConfirmedTxs: nil}
}

// Confirmed pairs a snapshot with the multi-signature that ratified it.
// ConfirmedSnapshot is the sum type from the data model: Initial carries
// only a UTxO set (no signature is needed for the synthetic number-0
// snapshot), Confirmed carries a real snapshot plus its unanimous
// multi-signature.
type Confirmed struct {
	IsInitial bool
	UTxO      ledger.UTxO // valid when IsInitial
	Snapshot  Snapshot    // valid when !IsInitial
	MultiSig  crypto.MultiSignature
}

// NewInitialConfirmed wraps a post-commit UTxO as the Initial variant.
func NewInitialConfirmed(utxo ledger.UTxO) Confirmed {
	return Confirmed{IsInitial: true, UTxO: utxo}
}

// NewConfirmed wraps a ratified snapshot as the Confirmed variant.
func NewConfirmed(s Snapshot, sig crypto.MultiSignature) Confirmed {
	return Confirmed{IsInitial: false, Snapshot: s, MultiSig: sig}
}

// NumberOnly builds a placeholder Confirmed carrying only a snapshot
// number, with no UTxO content. The chain only ever reports the snapshot
// number for a Close/Contest observation (the content lives off-chain);
// this placeholder is enough for the monotonicity comparisons in
// headlogic's Closed-phase transitions, which compare numbers, not
// content, until this party's own local snapshot matches.
func NumberOnly(n uint64) Confirmed {
	return Confirmed{IsInitial: false, Snapshot: Snapshot{Number: n}}
}

// Number returns 0 for the initial variant, and the wrapped number
// otherwise; this is what every monotonicity check in head logic compares
// against.
func (c Confirmed) Number() uint64 {
	if c.IsInitial {
		return 0
	}
	return c.Snapshot.Number
}

// CurrentUTxO returns the UTxO set this confirmation asserts.
func (c Confirmed) CurrentUTxO() ledger.UTxO {
	if c.IsInitial {
		return c.UTxO
	}
	return c.Snapshot.UTxO
}

// Pending is an in-flight candidate snapshot awaiting unanimous
// signatures, tracked as HeadState.Open.coordinatedState.seenSnapshot.
type Pending struct {
	Candidate Snapshot
	Sigs      crypto.MultiSignature
}
