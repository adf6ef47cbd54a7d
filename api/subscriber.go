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

package api

import (
	"container/list"
	"sync"

	"github.com/clevergo/websocket"

	"github.com/klaytn/hnode/internal/hlog"
)

// subscriber is one connected client: its websocket connection, its
// negotiated output options, and its own unbounded outbound buffer. §4.4
// requires the runtime never drop a ClientEffect; buffering it here, per
// connection, is how that holds even when a write to a slow client would
// otherwise block the whole fan-out.
type subscriber struct {
	id   string
	conn *websocket.Conn
	opts OutputOptions

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *list.List
	closed   bool
	closeErr error
}

func newSubscriber(id string, conn *websocket.Conn, opts OutputOptions) *subscriber {
	s := &subscriber{id: id, conn: conn, opts: opts, pending: list.New()}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// enqueue appends payload to the per-connection buffer; it never blocks
// and never drops.
func (s *subscriber) enqueue(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending.PushBack(payload)
	s.cond.Broadcast()
}

// writeLoop drains the buffer to the websocket connection in order until
// the subscriber is closed. Run as its own goroutine per connection.
func (s *subscriber) writeLoop(logger hlog.Logger) {
	for {
		s.mu.Lock()
		for s.pending.Len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed && s.pending.Len() == 0 {
			s.mu.Unlock()
			return
		}
		front := s.pending.Front()
		s.pending.Remove(front)
		s.mu.Unlock()

		payload := front.Value.([]byte)
		if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("write to subscriber failed, closing", "subscriber", s.id, "err", err)
			s.close(err)
			return
		}
	}
}

func (s *subscriber) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = err
	s.conn.Close()
	s.cond.Broadcast()
}
