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

// Package chainsim is a dev-mode chain.Backend: it stands in for the real
// Hydra-scripts-publishing chain client (out of scope per §1) by folding
// every PostChainTx straight back into an Observation, immediately and
// without consensus, so a node can be exercised end to end without a real
// chain. cmd/hnode always wires it in; it has no real chain client to
// choose instead.
package chainsim

import (
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/chainobserver"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/party"
)

// Simulator implements chainobserver.Backend. Each PostChainTx is applied
// and its resulting Event is handed to the supplied Adapter via Observe,
// on the same goroutine that called Post, emulating a chain with
// single-slot finality.
type Simulator struct {
	mu sync.Mutex

	adapter *chainobserver.Adapter

	headId             party.HeadId
	contestationPeriod time.Duration
	point              int
	fanoutUTxO         ledger.UTxO
}

var _ chainobserver.Backend = (*Simulator)(nil)

// New builds a Simulator that observes through adapter.
func New(adapter *chainobserver.Adapter) *Simulator {
	return &Simulator{adapter: adapter}
}

// PostTx folds tx into the simulated chain state and reports the
// resulting observation through the adapter, then reports success.
func (s *Simulator) PostTx(tx chain.PostChainTx, onResult func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch tx.Kind {
	case chain.PostInit:
		id, err := uuid.GenerateUUID()
		if err != nil {
			onResult(err)
			return
		}
		s.headId = party.HeadId([]byte(id))
		s.contestationPeriod = tx.Params.ContestationPeriod
		s.advance(chain.Event{
			Kind:     chain.EventObservedInit,
			HeadId:   s.headId,
			Params:   tx.Params,
			SeedTxIn: tx.SeedTxIn,
		})

	case chain.PostCommit:
		s.advance(chain.Event{
			Kind:          chain.EventObservedCommit,
			Committer:     tx.Committer,
			CommittedUTxO: tx.UTxO,
		})

	case chain.PostAbort:
		s.advance(chain.Event{Kind: chain.EventObservedAbort})

	case chain.PostCollectCom:
		s.advance(chain.Event{Kind: chain.EventObservedCollectCom})

	case chain.PostClose:
		s.advance(chain.Event{
			Kind:            chain.EventObservedClose,
			SnapshotNumber:  tx.Confirmed.Number(),
			ContestDeadline: time.Now().Add(s.contestationPeriod),
		})

	case chain.PostContest:
		s.advance(chain.Event{
			Kind:           chain.EventObservedContest,
			SnapshotNumber: tx.Confirmed.Number(),
		})

	case chain.PostFanout:
		s.fanoutUTxO = tx.FanoutUTxO
		s.advance(chain.Event{Kind: chain.EventObservedFanout})
	}

	onResult(nil)
}

// advance mints the next opaque chain point and folds event into the
// adapter's accumulated state.
func (s *Simulator) advance(event chain.Event) {
	s.point++
	point := pointFromInt(s.point)
	s.adapter.Observe(func(chain.State) (*chain.Event, chain.State, bool) {
		return &event, chain.State{Point: point}, true
	})
}

func pointFromInt(n int) string {
	const hexDigits = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = hexDigits[n&0xf]
		n >>= 4
	}
	return string(buf[i:])
}
