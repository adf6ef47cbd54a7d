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

// Package crypto exposes the signing primitives the head logic needs:
// per-party signatures over canonical snapshot bytes and their
// aggregation into a single multi-signature once every party has signed.
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/ed25519"

	"github.com/klaytn/hnode/party"
)

// Signature is a single party's signature over a message.
type Signature []byte

// MultiSignature aggregates one signature per signing party. Unlike a
// BLS-style aggregate, this keeps each constituent signature alongside the
// signer, which keeps verification trivial and dependency-free; it is
// still a single opaque value from the head logic's perspective.
type MultiSignature struct {
	Sigs map[string]Signature // keyed by party.VerificationKey.String()
}

// NewMultiSignature returns an empty aggregate ready to accumulate.
func NewMultiSignature() MultiSignature {
	return MultiSignature{Sigs: map[string]Signature{}}
}

// Add records p's signature. Re-adding the same party with the same bytes
// is a no-op, matching the idempotent AckSn contract in §5.
func (m MultiSignature) Add(p party.Party, sig Signature) {
	m.Sigs[p.VKey.String()] = sig
}

// Has reports whether p has already signed.
func (m MultiSignature) Has(p party.Party) bool {
	_, ok := m.Sigs[p.VKey.String()]
	return ok
}

// CoversAll reports whether every party in the set has signed.
func (m MultiSignature) CoversAll(parties party.Set) bool {
	for _, p := range parties.Parties() {
		if !m.Has(p) {
			return false
		}
	}
	return true
}

// KeyPair is a party's signing identity: a secret key plus the
// corresponding verification key published as party.VerificationKey.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh ed25519 key pair, used by cmd/hnode when
// no signing key is given and by tests to mint party identities.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// ErrVerificationFailed is returned by Verify when a signature does not
// check out; callers must drop the message and never propagate it,
// per the error-handling design (§7: "never trust or propagate").
var ErrVerificationFailed = errors.New("crypto: signature verification failed")

// Signer signs canonical byte payloads with a party's own key. It is the
// minimal interface head logic needs; it never sees the private key
// itself.
type Signer interface {
	Sign(msg []byte) Signature
}

// Verifier checks a signature against a party's published verification
// key. Production nodes back this with the same ed25519 primitive;
// alternate curves can be swapped in without touching head logic.
type Verifier interface {
	Verify(vkey party.VerificationKey, msg []byte, sig Signature) error
}

// Ed25519 implements both Signer (for the local party) and Verifier (for
// any party), backed by golang.org/x/crypto/ed25519.
type Ed25519 struct {
	Key KeyPair
}

func (e Ed25519) Sign(msg []byte) Signature {
	return Signature(ed25519.Sign(e.Key.Private, msg))
}

func (Ed25519) Verify(vkey party.VerificationKey, msg []byte, sig Signature) error {
	if !ed25519.Verify(ed25519.PublicKey(vkey), msg, []byte(sig)) {
		return ErrVerificationFailed
	}
	return nil
}
