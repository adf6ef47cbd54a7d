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

// Package network implements the peer protocol collaborator (§6): signed,
// length-prefixed ReqTx/ReqSn/AckSn envelopes plus a Heartbeat used to
// detect disconnected peers. Framing and transport are out of the core's
// scope (§1); this package is the node's adapter onto a Peer interface a
// concrete transport implements.
package network

import (
	"encoding/binary"
	"encoding/gob"
	"bytes"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/klaytn/hnode/crypto"
	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/internal/hlog"
	"github.com/klaytn/hnode/party"
	"github.com/klaytn/hnode/queue"
)

var logger = hlog.NewModuleLogger("network")

// DefaultHeartbeatInterval and DefaultMissedHeartbeats set T_hb and k from
// §6; both are implementation-defined defaults per §9's Open Questions.
const (
	DefaultHeartbeatInterval = 3 * time.Second
	DefaultMissedHeartbeats  = 3
	// DefaultReqTxTTL is the TTL_initial the Hub assigns to every ReqTx
	// it receives, bounding its retry count per Testable Property 9.
	DefaultReqTxTTL = 5
	dedupeCacheSize = 4096
)

// Envelope is the signed, length-prefixed wire message exchanged between
// peers. Peer implementations are responsible for framing (the length
// prefix); this package only defines the payload shape and signing.
type Envelope struct {
	Sender    party.Party
	Msg       headlogic.NetworkMsg
	Signature crypto.Signature
	IsHeartbeat bool
}

// dedupeKey identifies an envelope for the ARC dedup cache: the same
// sender broadcasting the same ReqTx/AckSn twice (a reliable-broadcast
// retry) should not be processed twice by the local ledger bookkeeping,
// though AckSn re-delivery is separately idempotent at the signature-set
// level (§5) — the cache here only avoids redundant queue churn.
func dedupeKey(e Envelope) string {
	var buf bytes.Buffer
	buf.WriteString(e.Sender.VKey.String())
	var kind [4]byte
	binary.BigEndian.PutUint32(kind[:], uint32(e.Msg.Kind))
	buf.Write(kind[:])
	switch e.Msg.Kind {
	case headlogic.MsgReqTx:
		buf.WriteString(e.Msg.Tx.Id)
	case headlogic.MsgReqSn:
		var num [8]byte
		binary.BigEndian.PutUint64(num[:], e.Msg.Number)
		buf.Write(num[:])
	case headlogic.MsgAckSn:
		var num [8]byte
		binary.BigEndian.PutUint64(num[:], e.Msg.AckedNumber)
		buf.Write(num[:])
	}
	return buf.String()
}

// Peer is the minimal send/identify surface a concrete transport provides
// for one connected remote party.
type Peer interface {
	Party() party.Party
	Send(Envelope) error
}

// Hub fans out broadcasts to every connected peer, dedupes inbound
// gossip via an ARC cache (matching the caching pattern the rest of the
// codebase uses for hot, bounded lookup sets), and tracks per-peer
// heartbeat liveness.
type Hub struct {
	mu          sync.Mutex
	peers       map[string]Peer
	lastSeen    map[string]time.Time
	seen        *lru.ARCCache
	q           *queue.Queue
	self        party.Party
	verifier    crypto.Verifier
	reqTxTTL    int
	missedLimit int
	interval    time.Duration
}

// NewHub builds a Hub that enqueues accepted inbound messages into q.
func NewHub(q *queue.Queue, self party.Party, verifier crypto.Verifier) (*Hub, error) {
	cache, err := lru.NewARC(dedupeCacheSize)
	if err != nil {
		return nil, err
	}
	return &Hub{
		peers:       map[string]Peer{},
		lastSeen:    map[string]time.Time{},
		seen:        cache,
		q:           q,
		self:        self,
		verifier:    verifier,
		reqTxTTL:    DefaultReqTxTTL,
		missedLimit: DefaultMissedHeartbeats,
		interval:    DefaultHeartbeatInterval,
	}, nil
}

// AddPeer registers a connected peer and emits PeerConnected for API
// subscribers by way of the same queue every other source uses.
func (h *Hub) AddPeer(p Peer) {
	h.mu.Lock()
	h.peers[p.Party().String()] = p
	h.lastSeen[p.Party().String()] = time.Now()
	h.mu.Unlock()
	h.q.Enqueue(headlogic.Input{
		Kind:       headlogic.InputPeerStatus,
		PeerStatus: headlogic.PeerStatus{Peer: p.Party(), Connected: true},
	})
}

// RemovePeer drops a peer, e.g. on transport-level disconnect.
func (h *Hub) RemovePeer(p party.Party) {
	h.mu.Lock()
	delete(h.peers, p.String())
	delete(h.lastSeen, p.String())
	h.mu.Unlock()
	h.q.Enqueue(headlogic.Input{
		Kind:       headlogic.InputPeerStatus,
		PeerStatus: headlogic.PeerStatus{Peer: p, Connected: false},
	})
}

// PeerCount reports the number of peers currently considered connected,
// for the /metrics gauge (§12).
func (h *Hub) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Broadcast sends msg, signed by self's key, to every connected peer.
// Effect ordering within one step is preserved by the caller invoking
// Broadcast once per NetworkBroadcast effect, in the order returned.
func (h *Hub) Broadcast(signer crypto.Signer, msg headlogic.NetworkMsg) {
	env := Envelope{Sender: h.self, Msg: msg, Signature: signer.Sign(canonicalize(msg))}
	h.mu.Lock()
	peers := make([]Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()
	for _, p := range peers {
		if err := p.Send(env); err != nil {
			logger.Warn("failed to send to peer", "peer", p.Party(), "err", err)
		}
	}
}

// Receive is invoked by the transport for every inbound envelope. A
// message whose signature does not verify is dropped with a log, never
// trusted or propagated (§7). A heartbeat only updates liveness and is
// never enqueued as a NetworkInput.
func (h *Hub) Receive(env Envelope) {
	if env.IsHeartbeat {
		h.mu.Lock()
		h.lastSeen[env.Sender.String()] = time.Now()
		h.mu.Unlock()
		return
	}
	if err := h.verifier.Verify(env.Sender.VKey, canonicalize(env.Msg), env.Signature); err != nil {
		logger.Warn("dropping unverified peer message", "sender", env.Sender, "err", err)
		return
	}
	key := dedupeKey(env)
	if h.seen.Contains(key) {
		return
	}
	h.seen.Add(key, struct{}{})
	h.mu.Lock()
	h.lastSeen[env.Sender.String()] = time.Now()
	h.mu.Unlock()

	ttl := 0
	if env.Msg.Kind == headlogic.MsgReqTx {
		ttl = h.reqTxTTL
	}
	h.q.Enqueue(headlogic.Input{
		Kind: headlogic.InputNetwork,
		Network: headlogic.NetworkInput{
			Sender: env.Sender,
			TTL:    ttl,
			Msg:    env.Msg,
		},
	})
}

// Requeue re-enqueues a NetworkInput whose TTL has not been exhausted,
// servicing headlogic.EffectRequeueNetwork (§4.3.2).
func (h *Hub) Requeue(in headlogic.NetworkInput) {
	h.q.Enqueue(headlogic.Input{Kind: headlogic.InputNetwork, Network: in})
}

// RunHeartbeat periodically broadcasts a heartbeat and marks peers that
// have missed DefaultMissedHeartbeats intervals as disconnected, until
// stop is closed.
func (h *Hub) RunHeartbeat(signer crypto.Signer, stop <-chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hb := Envelope{Sender: h.self, IsHeartbeat: true, Signature: signer.Sign(canonicalize(headlogic.NetworkMsg{}))}
			h.mu.Lock()
			peers := make([]Peer, 0, len(h.peers))
			for _, p := range h.peers {
				peers = append(peers, p)
			}
			h.mu.Unlock()
			for _, p := range peers {
				if err := p.Send(hb); err != nil {
					logger.Warn("failed to send heartbeat to peer", "peer", p.Party(), "err", err)
				}
			}
			h.checkLiveness()
		}
	}
}

func (h *Hub) checkLiveness() {
	deadline := time.Now().Add(-time.Duration(h.missedLimit) * h.interval)
	h.mu.Lock()
	var disconnected []party.Party
	for key, last := range h.lastSeen {
		if last.Before(deadline) {
			disconnected = append(disconnected, h.peers[key].Party())
			delete(h.peers, key)
			delete(h.lastSeen, key)
		}
	}
	h.mu.Unlock()
	for _, p := range disconnected {
		logger.Info("peer disconnected on missed heartbeats", "peer", p)
		h.q.Enqueue(headlogic.Input{
			Kind:       headlogic.InputPeerStatus,
			PeerStatus: headlogic.PeerStatus{Peer: p, Connected: false},
		})
	}
}

// canonicalize encodes a NetworkMsg deterministically for signing; gob is
// used rather than JSON since map ordering is not a concern here (the
// message itself has no maps) and it is already a teacher/pack
// dependency-free stdlib choice consistent with the rest of the wire
// encoding in this package.
func canonicalize(msg headlogic.NetworkMsg) []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	enc.Encode(msg.Kind)
	switch msg.Kind {
	case headlogic.MsgReqTx:
		enc.Encode(msg.Tx.Id)
		enc.Encode(msg.Tx.Body)
	case headlogic.MsgReqSn:
		enc.Encode(msg.Leader.VKey)
		enc.Encode(msg.Number)
		for _, tx := range msg.Txs {
			enc.Encode(tx.Id)
		}
	case headlogic.MsgAckSn:
		enc.Encode(msg.Acker.VKey)
		enc.Encode(msg.AckedNumber)
	}
	return buf.Bytes()
}
