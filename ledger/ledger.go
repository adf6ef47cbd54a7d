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

// Package ledger abstracts over the concrete transaction type so the head
// logic state machine stays generic. Both cmd/hnode and the tests wire the
// trivial in-memory ledger in this package (Simple).
package ledger

import (
	"encoding/json"
	"errors"
)

// ErrTxInvalid is returned by ApplyTx when a transaction does not apply
// cleanly to the supplied UTxO set (double spend, bad signature, unknown
// input, script failure, ...), surfaced to clients as TxInvalid per the
// error handling design. Simple returns it unwrapped, for an input missing
// from the set, and carries no further diagnostic.
var ErrTxInvalid = errors.New("ledger: transaction does not apply")

// TxIn identifies a transaction output being spent.
type TxIn struct {
	TxId  string
	Index uint32
}

// TxOut is an opaque output value; core treats it as a blob plus an address
// tag used only for the legacy-address rejection rule in Commit.
type TxOut struct {
	Address string
	Value   uint64
	Legacy  bool // true for non-native address types, rejected at commit time
}

// Tx is the minimal shape the core needs from a ledger transaction: which
// inputs it spends and which outputs it creates. Concrete ledgers carry
// additional fields (witnesses, scripts, metadata) opaque to the core.
type Tx struct {
	Id      string
	Inputs  []TxIn
	Outputs []TxOut
	// Body holds the ledger-specific payload. The core never inspects it;
	// it is threaded through for wire encoding and canonical hashing.
	Body []byte
}

// UTxO is a mapping from output reference to output value. The core treats
// it opaquely except for Union/Apply/Equal, per the data model's UTxOSet
// contract.
type UTxO struct {
	entries map[TxIn]TxOut
}

// NewUTxO builds a UTxO set from a reference map. The caller's map is
// copied so later mutation of it does not alias the result.
func NewUTxO(entries map[TxIn]TxOut) UTxO {
	copied := make(map[TxIn]TxOut, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return UTxO{entries: copied}
}

// Empty returns the empty UTxO set.
func Empty() UTxO {
	return UTxO{entries: map[TxIn]TxOut{}}
}

// Len reports the number of outputs.
func (u UTxO) Len() int {
	return len(u.entries)
}

// Contains reports whether in is present.
func (u UTxO) Contains(in TxIn) bool {
	_, ok := u.entries[in]
	return ok
}

// Entries returns a defensive copy of the underlying map, sorted iteration
// is the caller's responsibility where determinism matters (see
// snapshot.CanonicalBytes).
func (u UTxO) Entries() map[TxIn]TxOut {
	copied := make(map[TxIn]TxOut, len(u.entries))
	for k, v := range u.entries {
		copied[k] = v
	}
	return copied
}

// Union merges two UTxO sets. Overlapping keys take the receiver's value;
// callers are expected to union disjoint commit sets (the protocol never
// unions overlapping ones).
func (u UTxO) Union(other UTxO) UTxO {
	merged := u.Entries()
	for k, v := range other.entries {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return UTxO{entries: merged}
}

// Difference removes every key present in other from u.
func (u UTxO) Difference(other UTxO) UTxO {
	result := make(map[TxIn]TxOut, len(u.entries))
	for k, v := range u.entries {
		if _, exists := other.entries[k]; !exists {
			result[k] = v
		}
	}
	return UTxO{entries: result}
}

// Equal reports whether two UTxO sets contain the same entries.
func (u UTxO) Equal(other UTxO) bool {
	if len(u.entries) != len(other.entries) {
		return false
	}
	for k, v := range u.entries {
		ov, ok := other.entries[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// utxoEntry is the JSON-friendly representation of one UTxO map entry;
// TxIn is not itself a valid JSON object key, so persistence (and any
// other JSON boundary) round-trips the set as a slice instead.
type utxoEntry struct {
	In  TxIn
	Out TxOut
}

func (u UTxO) MarshalJSON() ([]byte, error) {
	entries := make([]utxoEntry, 0, len(u.entries))
	for in, out := range u.entries {
		entries = append(entries, utxoEntry{In: in, Out: out})
	}
	return json.Marshal(entries)
}

func (u *UTxO) UnmarshalJSON(data []byte) error {
	var entries []utxoEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	m := make(map[TxIn]TxOut, len(entries))
	for _, e := range entries {
		m[e.In] = e.Out
	}
	u.entries = m
	return nil
}

// Ledger validates and applies transactions against a UTxO set. The core
// never constructs a Ledger implementation; one is supplied per node
// (cmd/hnode and the tests both use the in-memory Simple ledger).
type Ledger interface {
	// ApplyTx validates tx against utxo and, on success, returns the
	// resulting UTxO set. On failure it returns a non-nil error; Simple
	// returns ErrTxInvalid or ErrUnsupportedLegacyOutput, unwrapped.
	ApplyTx(utxo UTxO, tx Tx) (UTxO, error)
}

// Simple is a trivial in-memory ledger: a tx applies iff every input it
// spends is present in utxo, and it is rejected outright if any output
// uses a legacy address (matching the commit-time rule exercised on open
// transactions reaching the ledger unvalidated from outside the head).
type Simple struct{}

// ErrUnsupportedLegacyOutput flags a commit or transaction touching a
// non-native address type, per the boundary behavior in spec §8.
var ErrUnsupportedLegacyOutput = errors.New("ledger: unsupported legacy output type")

func (Simple) ApplyTx(utxo UTxO, tx Tx) (UTxO, error) {
	for _, in := range tx.Inputs {
		if !utxo.Contains(in) {
			return UTxO{}, ErrTxInvalid
		}
	}
	for _, out := range tx.Outputs {
		if out.Legacy {
			return UTxO{}, ErrUnsupportedLegacyOutput
		}
	}
	next := utxo
	for _, in := range tx.Inputs {
		next = next.Difference(NewUTxO(map[TxIn]TxOut{in: {}}))
	}
	additions := make(map[TxIn]TxOut, len(tx.Outputs))
	for i, out := range tx.Outputs {
		additions[TxIn{TxId: tx.Id, Index: uint32(i)}] = out
	}
	return next.Union(NewUTxO(additions)), nil
}
