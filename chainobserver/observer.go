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

// Package chainobserver implements C6: it bridges whatever underlying
// chain client exists into the node's input queue, maintaining the
// accumulated ChainState view behind a single mutex so that several
// observations within one block can chain-update the state before any
// event is enqueued (§4.5, §9's "continuation-style chain callback"
// re-architecture note).
package chainobserver

import (
	"sync"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/internal/hlog"
	"github.com/klaytn/hnode/queue"
)

var logger = hlog.NewModuleLogger("chainobserver")

// Backend is the underlying chain client's interface: whatever posts
// transactions and streams block data. The core treats it as an external
// collaborator (§1) with only this interface specified.
type Backend interface {
	// PostTx submits a constructed, signed on-chain transaction. It may
	// return asynchronously; implementations are expected to invoke the
	// onResult callback exactly once, either with nil on success or an
	// error on failure.
	PostTx(tx chain.PostChainTx, onResult func(error))
}

// Adapter owns the accumulated ChainState and the queue it feeds.
type Adapter struct {
	mu     sync.Mutex
	state  chain.State
	q      *queue.Queue
	backend Backend
}

// New creates an adapter seeded with the initial chain state (typically
// the empty/genesis view on a fresh node, or whatever was last persisted).
// backend may be nil and supplied later via SetBackend, for collaborators
// (e.g. chainsim.Simulator) that need the adapter constructed first.
func New(q *queue.Queue, backend Backend, initial chain.State) *Adapter {
	return &Adapter{state: initial, q: q, backend: backend}
}

// SetBackend wires the backend once it exists. Callers must do this
// before the adapter's Post is ever invoked; it is not safe to call
// concurrently with Post.
func (a *Adapter) SetBackend(backend Backend) {
	a.backend = backend
}

// Observe invokes callback with the current accumulated chain state under
// the adapter's mutex. If callback returns ok=true, the adapter's
// state is updated to the event's NewChainState and an Observation input
// is enqueued — all before the mutex is released, so a caller driving
// several observations within one block sees each one fold into the next.
func (a *Adapter) Observe(callback func(chain.State) (*chain.Event, chain.State, bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	event, newState, ok := callback(a.state)
	if !ok {
		return
	}
	a.state = newState
	a.q.Enqueue(headlogic.Input{
		Kind: headlogic.InputChain,
		Chain: headlogic.ChainInput{
			Kind: headlogic.ChainObservation,
			Observation: chain.Observation{
				ObservedTx:    *event,
				NewChainState: newState,
			},
		},
	})
}

// Rollback replaces the accumulated chain state wholesale and enqueues a
// Rollback input, used when the underlying chain client detects its local
// best chain has been superseded.
func (a *Adapter) Rollback(toState chain.State) {
	a.mu.Lock()
	a.state = toState
	a.mu.Unlock()
	a.q.Enqueue(headlogic.Input{
		Kind: headlogic.InputChain,
		Chain: headlogic.ChainInput{
			Kind:     headlogic.ChainRollback,
			Rollback: chain.Rollback{ToChainState: toState},
		},
	})
}

// CurrentState returns a snapshot of the adapter's accumulated view, for
// diagnostics and metrics; it never blocks on Observe for long since the
// mutex is only held across one callback invocation.
func (a *Adapter) CurrentState() chain.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Post asks the backend to submit a chain transaction. On failure, the
// raw failure is re-enqueued as an InputPostFailed, the same way every
// other event source reports into the queue (§4.5, §7); head logic turns
// it into a PostTxOnChainFailed ClientEffect.
func (a *Adapter) Post(tx chain.PostChainTx) {
	a.backend.PostTx(tx, func(err error) {
		if err == nil {
			// Observation is the source of truth: a successful post is
			// not itself enqueued as an event; the node waits for the
			// chain to actually observe the resulting transaction.
			return
		}
		logger.Warn("chain post failed", "kind", tx.Kind, "err", err)
		a.q.Enqueue(postFailedInput(tx, err))
	})
}

func postFailedInput(tx chain.PostChainTx, err error) headlogic.Input {
	return headlogic.Input{
		Kind:       headlogic.InputPostFailed,
		PostFailed: chain.PostTxOnChainFailed{Tx: tx, Err: err},
	}
}
