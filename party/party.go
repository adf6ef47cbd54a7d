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

// Package party defines the identity of a head participant and the
// deterministic ordering rules the rest of the protocol relies on for
// signature canonicalization and snapshot leader rotation.
package party

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// VerificationKey is a party's public signing key, opaque to the core
// beyond byte comparison and ordering.
type VerificationKey []byte

func (k VerificationKey) String() string {
	return hex.EncodeToString(k)
}

// Party is a single head participant.
type Party struct {
	VKey VerificationKey
}

// String renders a short hex identifier, used in logs.
func (p Party) String() string {
	return p.VKey.String()
}

// Equal reports whether two parties carry the same verification key.
func (p Party) Equal(other Party) bool {
	return bytes.Equal(p.VKey, other.VKey)
}

// Set is a fixed, deterministically ordered collection of parties. The
// ordering is canonical: sorted by verification key bytes. It is computed
// once at construction and never mutated, matching the "fixed at
// initialization" invariant in the data model.
type Set struct {
	ordered []Party
}

// NewSet builds a canonically ordered party set. Duplicate verification
// keys are collapsed.
func NewSet(parties ...Party) Set {
	seen := make(map[string]bool, len(parties))
	ordered := make([]Party, 0, len(parties))
	for _, p := range parties {
		key := string(p.VKey)
		if seen[key] {
			continue
		}
		seen[key] = true
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].VKey, ordered[j].VKey) < 0
	})
	return Set{ordered: ordered}
}

// Parties returns the canonical ordering. Callers must not mutate the
// returned slice.
func (s Set) Parties() []Party {
	return s.ordered
}

// Len returns the number of parties.
func (s Set) Len() int {
	return len(s.ordered)
}

// Contains reports whether p is a member of the set.
func (s Set) Contains(p Party) bool {
	for _, member := range s.ordered {
		if member.Equal(p) {
			return true
		}
	}
	return false
}

// IndexOf returns the canonical index of p, or -1 if absent.
func (s Set) IndexOf(p Party) int {
	for i, member := range s.ordered {
		if member.Equal(p) {
			return i
		}
	}
	return -1
}

// Leader returns the party designated to initiate the snapshot numbered n,
// per the deterministic rotation rule leader(n) = parties[n mod |parties|].
func (s Set) Leader(n uint64) Party {
	return s.ordered[int(n%uint64(s.Len()))]
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ordered)
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var parties []Party
	if err := json.Unmarshal(data, &parties); err != nil {
		return err
	}
	*s = NewSet(parties...)
	return nil
}

// HeadId is the opaque identifier minted by the chain at initialization.
type HeadId []byte

func (h HeadId) String() string {
	return hex.EncodeToString(h)
}

// Equal reports whether two head ids are identical.
func (h HeadId) Equal(other HeadId) bool {
	return bytes.Equal(h, other)
}

// Parameters are the immutable parameters of a head instance.
type Parameters struct {
	Parties            Set
	ContestationPeriod time.Duration
}
