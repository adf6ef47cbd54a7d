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

// Package headstate holds the in-memory typed state of a head (C3): the
// sum type Idle/Initial/Open/Closed/Final plus the coordinated-ledger
// bookkeeping Open carries while the snapshot protocol runs.
package headstate

import (
	"time"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/snapshot"
)

// Phase tags which variant of State is populated. Only the fields
// documented for that phase are meaningful; the others are zero.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitial
	PhaseOpen
	PhaseClosed
	PhaseFinal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseInitial:
		return "Initial"
	case PhaseOpen:
		return "Open"
	case PhaseClosed:
		return "Closed"
	case PhaseFinal:
		return "Final"
	default:
		return "Unknown"
	}
}

// CoordinatedState is the bookkeeping an Open head carries while the
// snapshot protocol runs, per the data model's Open variant.
type CoordinatedState struct {
	InitialUTxO       ledger.UTxO
	LocalTxs          []ledger.Tx     // txs this party submitted via NewTx, awaiting confirmation
	SeenTxs           []ledger.Tx     // txs accepted via NewTx or ReqTx and not yet in a confirmed snapshot
	SeenUTxO          ledger.UTxO     // InitialUTxO with every accepted tx applied; not reset on confirmation
	ConfirmedSnapshot snapshot.Confirmed
	SeenSnapshot      *snapshot.Pending // nil when no snapshot is in flight
	AllTxs            []ledger.Tx       // every tx appended to SeenTxs, kept past confirmation
}

// ClosedState is the bookkeeping a Closed head carries while the
// contestation period runs.
type ClosedState struct {
	ConfirmedSnapshot     snapshot.Confirmed // the highest snapshot number observed posted on chain (close or contest)
	LocalConfirmedSnapshot snapshot.Confirmed // this party's own best snapshot at the moment the head closed; used to decide whether to Contest
	ContestationDeadline  time.Time
	ReadyToFanout         bool
}

// State is the head's sum type. Exactly the fields documented for Phase
// are meaningful.
type State struct {
	Phase Phase

	// Initial, Open, Closed, Final all carry these once a head is known.
	HeadId party.HeadId
	Params party.Parameters

	// Initial
	Committed map[string]ledger.UTxO // keyed by party.VerificationKey.String()
	SeedTxIn  ledger.TxIn

	// Open
	Coordinated CoordinatedState

	// Closed
	Closed ClosedState

	// Final
	FinalUTxO ledger.UTxO

	// Carried across every phase: the chain adapter's latest observed
	// view, opaque beyond equality per the data model.
	ChainState chain.State
}

// Idle constructs the no-head-open state.
func Idle(cs chain.State) State {
	return State{Phase: PhaseIdle, ChainState: cs}
}

// Checkpoint pairs a past State with the chain point it was valid at, so
// a later Rollback can find the most recent consistent state to revert
// to (§4.3.3).
type Checkpoint struct {
	State      State
	ChainPoint string
}

// Persisted is what the persistence log actually stores (C2): the current
// state plus a small ring of prior checkpoints deep enough to undo chain
// rollbacks. MaxHistory bounds the ring; 0 means use DefaultMaxHistory.
type Persisted struct {
	Current    State
	History    []Checkpoint
	MaxHistory int
}

// DefaultMaxHistory is the rollback ring depth used when a node does not
// override it via config; chosen generously relative to typical
// short-range chain reorgs (an Open Question in §9, decided here and
// recorded in DESIGN.md).
const DefaultMaxHistory = 50

// Checkpoint appends the current state (tagged with its chain point)
// to the history ring, trimming the oldest entry once MaxHistory is
// exceeded.
func (p Persisted) Checkpoint() Persisted {
	max := p.MaxHistory
	if max <= 0 {
		max = DefaultMaxHistory
	}
	history := append(append([]Checkpoint(nil), p.History...), Checkpoint{
		State:      p.Current.Clone(),
		ChainPoint: p.Current.ChainState.Point,
	})
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return Persisted{Current: p.Current, History: history, MaxHistory: p.MaxHistory}
}

// RevertTo searches the ring for the most recent checkpoint whose chain
// point equals toPoint (an exact match; points are not ordered) and
// returns it plus the trimmed history below it. If no
// checkpoint matches, it returns the oldest known checkpoint (the best
// recovery available) and ok=false.
func (p Persisted) RevertTo(toPoint string) (State, []Checkpoint, bool) {
	for i := len(p.History) - 1; i >= 0; i-- {
		if p.History[i].ChainPoint == toPoint {
			return p.History[i].State, p.History[:i], true
		}
	}
	if len(p.History) > 0 {
		return p.History[0].State, nil, false
	}
	return p.Current, nil, false
}

// Clone returns a deep-enough copy for safe storage in the rollback
// checkpoint ring (see headlogic's rollback handling): maps and slices are
// copied so later mutation of the live state never aliases a checkpoint.
func (s State) Clone() State {
	clone := s
	if s.Committed != nil {
		clone.Committed = make(map[string]ledger.UTxO, len(s.Committed))
		for k, v := range s.Committed {
			clone.Committed[k] = v
		}
	}
	clone.Coordinated.LocalTxs = append([]ledger.Tx(nil), s.Coordinated.LocalTxs...)
	clone.Coordinated.SeenTxs = append([]ledger.Tx(nil), s.Coordinated.SeenTxs...)
	clone.Coordinated.AllTxs = append([]ledger.Tx(nil), s.Coordinated.AllTxs...)
	if s.Coordinated.SeenSnapshot != nil {
		pending := *s.Coordinated.SeenSnapshot
		if s.Coordinated.SeenSnapshot.Sigs.Sigs != nil {
			pending.Sigs = crypto.NewMultiSignature()
			for k, v := range s.Coordinated.SeenSnapshot.Sigs.Sigs {
				pending.Sigs.Sigs[k] = v
			}
		}
		clone.Coordinated.SeenSnapshot = &pending
	}
	return clone
}
