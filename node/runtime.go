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

package node

import (
	"sync"
	"time"

	"github.com/klaytn/hnode/chain"
	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/internal/hlog"
	"github.com/klaytn/hnode/internal/metrics"
	"github.com/klaytn/hnode/persistence"
	"github.com/klaytn/hnode/queue"
)

var logger = hlog.NewModuleLogger("node")

// NetworkDispatcher is the subset of network.Hub the runtime dispatches
// EffectNetworkBroadcast and EffectRequeueNetwork to.
type NetworkDispatcher interface {
	Broadcast(signer crypto.Signer, msg headlogic.NetworkMsg)
	Requeue(in headlogic.NetworkInput)
}

// ChainDispatcher is the subset of chainobserver.Adapter the runtime
// dispatches EffectOnChain to.
type ChainDispatcher interface {
	Post(tx chain.PostChainTx)
}

// ClientDispatcher is the API Server collaborator: every ClientEffect is
// handed to it, stamped with the causing input's sequence id and the
// current wall clock, per §6's {seq, timestamp} envelope requirement.
type ClientDispatcher interface {
	Deliver(seq uint64, ts time.Time, out headlogic.ServerOutput)
}

// Clock supplies wall-clock time; the core never reads it directly (§1
// non-goal: "does not decide wall-clock time"), only the runtime does, to
// stamp outputs and to drive the periodic Tick input.
type Clock func() time.Time

// Runtime drives C5: dequeue, step under a single state cell, persist,
// dispatch. It is the only writer of the in-memory current state; no
// other package is allowed to mutate it.
type Runtime struct {
	env     headlogic.Environment
	queue   *queue.Queue
	store   persistence.Store
	network NetworkDispatcher
	chain   ChainDispatcher
	clients ClientDispatcher
	clock   Clock

	mu      sync.Mutex
	current headstate.Persisted
}

// NewRuntime builds a Runtime seeded with the last persisted state (or a
// fresh Idle state if store.Load returned none). rollbackHistory overrides
// headstate.DefaultMaxHistory when positive (§9's rollback-depth Open
// Question, resolved as a config knob per SPEC_FULL §12).
func NewRuntime(
	env headlogic.Environment,
	q *queue.Queue,
	store persistence.Store,
	netw NetworkDispatcher,
	chainAdapter ChainDispatcher,
	clients ClientDispatcher,
	initial headstate.Persisted,
	rollbackHistory int,
	clock Clock,
) *Runtime {
	if rollbackHistory > 0 {
		initial.MaxHistory = rollbackHistory
	}
	if clock == nil {
		clock = time.Now
	}
	return &Runtime{
		env:     env,
		queue:   q,
		store:   store,
		network: netw,
		chain:   chainAdapter,
		clients: clients,
		clock:   clock,
		current: initial,
	}
}

// CurrentState returns the live head state, for the API server's Greetings
// projection (the metrics gauges are fed by Run directly). It never blocks the node
// loop for longer than a map copy.
func (r *Runtime) CurrentState() headstate.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Current
}

// EnqueueTick is a convenience for a periodic timer goroutine driving the
// deadline-check input named in §4.1.
func (r *Runtime) EnqueueTick() {
	r.queue.Enqueue(headlogic.Input{Kind: headlogic.InputTick, Tick: r.clock()})
}

// Run drives the loop until the queue is closed. It is meant to be the
// only goroutine that ever calls headlogic.Step.
func (r *Runtime) Run() {
	for {
		item, err := r.queue.Dequeue()
		if err == queue.ErrClosed {
			logger.Info("node loop exiting: queue closed")
			return
		}
		input, ok := item.Input.(headlogic.Input)
		if !ok {
			logger.Warn("dropping item of unexpected type on the input queue", "id", item.Id)
			continue
		}

		r.mu.Lock()
		state := r.current
		r.mu.Unlock()

		newState, effects := headlogic.Step(r.env, state, input)

		r.mu.Lock()
		r.current = newState
		r.mu.Unlock()

		// Persistence I/O failures are fatal (§7): a party that cannot
		// durably record its state risks signing divergent snapshots.
		if err := r.store.Save(newState); err != nil {
			hlog.Fatal(logger, "persistence save failed, exiting", "err", err)
		}

		metrics.ObserveHeadState(newState.Current)
		metrics.SetQueueDepth(r.queue.Len())

		for _, eff := range effects {
			r.dispatch(item.Id, eff)
		}
	}
}

func (r *Runtime) dispatch(seq uint64, eff headlogic.Effect) {
	switch eff.Kind {
	case headlogic.EffectNetworkBroadcast:
		r.network.Broadcast(r.env.Crypto, eff.Broadcast)
	case headlogic.EffectClient:
		r.clients.Deliver(seq, r.clock(), eff.Client)
	case headlogic.EffectOnChain:
		r.chain.Post(eff.OnChain)
	case headlogic.EffectDelay:
		r.scheduleDelay(eff.DelayUntil, eff.DelayEvent)
	case headlogic.EffectRequeueNetwork:
		r.network.Requeue(eff.Requeue)
	}
}

// scheduleDelay re-enqueues event once the wall clock reaches until,
// unless the head has moved out of Closed in the meantime (§5's
// cancellation rule: "the effect dispatcher checks state at fire time").
// A delay timer is a side effect outside headlogic.Step's pure world, so
// it lives here rather than in the state machine.
func (r *Runtime) scheduleDelay(until time.Time, event headlogic.ChainInput) {
	d := time.Until(until)
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, func() {
		r.mu.Lock()
		stillClosed := r.current.Current.Phase == headstate.PhaseClosed
		r.mu.Unlock()
		if !stillClosed {
			return
		}
		r.queue.Enqueue(headlogic.Input{Kind: headlogic.InputChain, Chain: event})
	})
}
