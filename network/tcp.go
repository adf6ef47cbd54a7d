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

package network

import (
	"encoding/gob"
	"net"
	"sync"

	"github.com/klaytn/hnode/party"
)

// TCPPeer is the concrete Peer a plain TCP connection provides: a
// gob-streamed sequence of Envelopes, one handshake frame (the remote's
// Party) first. Framing itself is out of the core's scope (§1); this is
// the node's default transport when nothing fancier is configured.
type TCPPeer struct {
	conn net.Conn
	self party.Party

	encMu sync.Mutex
	enc   *gob.Encoder
}

func (p *TCPPeer) Party() party.Party { return p.self }

func (p *TCPPeer) Send(env Envelope) error {
	p.encMu.Lock()
	defer p.encMu.Unlock()
	return p.enc.Encode(env)
}

// Listener accepts inbound TCP connections and registers each as a Peer
// on hub once its handshake frame has been read.
type Listener struct {
	hub      *Hub
	listener net.Listener
}

// Listen starts accepting connections on addr.
func Listen(addr string, hub *Hub) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l := &Listener{hub: hub, listener: ln}
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		go handleConn(conn, l.hub)
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Dial connects out to a peer's address and registers it on hub.
func Dial(addr string, hub *Hub) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	go handleConn(conn, hub)
	return nil
}

// handleConn runs the handshake (exchange Party identities) then feeds
// every subsequently decoded Envelope to hub.Receive until the
// connection closes, at which point the peer is removed.
func handleConn(conn net.Conn, hub *Hub) {
	enc := gob.NewEncoder(conn)
	dec := gob.NewDecoder(conn)

	if err := enc.Encode(hub.self); err != nil {
		logger.Warn("handshake send failed", "err", err)
		conn.Close()
		return
	}
	var remote party.Party
	if err := dec.Decode(&remote); err != nil {
		logger.Warn("handshake receive failed", "err", err)
		conn.Close()
		return
	}

	peer := &TCPPeer{conn: conn, self: remote, enc: enc}
	hub.AddPeer(peer)
	defer hub.RemovePeer(remote)

	for {
		var env Envelope
		if err := dec.Decode(&env); err != nil {
			conn.Close()
			return
		}
		hub.Receive(env)
	}
}
