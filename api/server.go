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
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/clevergo/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/headstate"
	"github.com/klaytn/hnode/internal/hlog"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/queue"
)

var logger = hlog.NewModuleLogger("api")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StateSnapshot is the subset of node.Runtime the server needs for the
// Greetings projection on new-subscriber connect (§6, §12).
type StateSnapshot interface {
	CurrentState() headstate.State
}

// wireCommand is the JSON shape a subscriber sends inbound: {tag, utxo?,
// transaction?}, per §6's client command surface.
type wireCommand struct {
	Tag         string     `json:"tag"`
	UTxO        ledger.UTxO `json:"utxo"`
	Transaction ledger.Tx   `json:"transaction"`
}

var commandTags = map[string]headlogic.ClientCommandKind{
	"Init":    headlogic.CmdInit,
	"Abort":   headlogic.CmdAbort,
	"Commit":  headlogic.CmdCommit,
	"NewTx":   headlogic.CmdNewTx,
	"GetUTxO": headlogic.CmdGetUTxO,
	"Close":   headlogic.CmdClose,
	"Contest": headlogic.CmdContest,
	"Fanout":  headlogic.CmdFanout,
}

// Server is the Client API collaborator named in §6: a JSON-over-
// WebSocket stream fanning every ClientEffect out to every connected
// subscriber, plus a query-string-negotiated OutputOptions per
// connection. It implements node.ClientDispatcher.
type Server struct {
	commands *queue.Queue
	state    StateSnapshot

	mu          sync.Mutex
	subscribers map[string]*subscriber
	nextID      uint64
}

// NewServer builds a Server that enqueues decoded inbound commands onto
// commands (the same input queue the node runtime drains) and reads
// state for the Greetings projection.
func NewServer(commands *queue.Queue, state StateSnapshot) *Server {
	return &Server{
		commands:    commands,
		state:       state,
		subscribers: map[string]*subscriber{},
	}
}

// Handler returns the full HTTP handler: a websocket upgrade route plus
// CORS, matching the teacher's httprouter + rs/cors composition for its
// RPC surface.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()
	router.GET("/", s.handleUpgrade)
	return cors.Default().Handler(router)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	opts := parseOutputOptions(r)

	s.mu.Lock()
	s.nextID++
	id := strconv.FormatUint(s.nextID, 10)
	sub := newSubscriber(id, conn, opts)
	s.subscribers[id] = sub
	s.mu.Unlock()

	logger.Info("subscriber connected", "id", id)
	s.sendGreetings(sub)

	go sub.writeLoop(logger)
	s.readLoop(sub)
}

// parseOutputOptions negotiates tx-format and utxoInSnapshot from query
// parameters (§6), falling back to DefaultOutputOptions.
func parseOutputOptions(r *http.Request) OutputOptions {
	opts := DefaultOutputOptions
	if v := r.URL.Query().Get("tx-format"); v == string(TxFormatCBORHex) {
		opts.TxFormat = TxFormatCBORHex
	}
	if v := r.URL.Query().Get("utxoInSnapshot"); v == string(UTxOOmit) {
		opts.UTxOInSnapshot = UTxOOmit
	}
	return opts
}

// sendGreetings delivers the first message a new subscriber sees: a
// projection of the current head state, bypassing the input queue and
// headlogic.Step entirely (SPEC_FULL §12).
func (s *Server) sendGreetings(sub *subscriber) {
	snap := s.state.CurrentState()
	payload := jsonMarshalOrPanic(map[string]interface{}{
		"seq":       0,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"tag":       string(headlogic.TagGreetings),
		"headStatus": map[string]interface{}{
			"phase":  snap.Phase.String(),
			"headId": snap.HeadId,
		},
	})
	sub.enqueue(payload)
}

func (s *Server) readLoop(sub *subscriber) {
	defer s.drop(sub)
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		var wire wireCommand
		if err := json.Unmarshal(data, &wire); err != nil {
			s.rejectInput(sub, "malformed command: "+err.Error())
			continue
		}
		kind, ok := commandTags[wire.Tag]
		if !ok {
			s.rejectInput(sub, "unknown command tag: "+wire.Tag)
			continue
		}
		s.commands.Enqueue(headlogic.Input{
			Kind: headlogic.InputClient,
			Client: headlogic.ClientInput{
				ClientId: sub.id,
				Command: headlogic.ClientCommand{
					Kind: kind,
					UTxO: wire.UTxO,
					Tx:   wire.Transaction,
				},
			},
		})
	}
}

// rejectInput delivers InvalidInput directly to the originating
// subscriber without going through the input queue: a malformed command
// never became a well-typed Input, so headlogic.Step never sees it (§6).
func (s *Server) rejectInput(sub *subscriber, reason string) {
	payload, err := Format(0, time.Now(), headlogic.ServerOutput{
		Tag:    headlogic.TagInvalidInput,
		Reason: reason,
	}, sub.opts)
	if err != nil {
		logger.Warn("failed to format InvalidInput", "err", err)
		return
	}
	sub.enqueue(payload)
}

func (s *Server) drop(sub *subscriber) {
	s.mu.Lock()
	delete(s.subscribers, sub.id)
	s.mu.Unlock()
	sub.close(nil)
	logger.Info("subscriber disconnected", "id", sub.id)
}

// Deliver implements node.ClientDispatcher: every ClientEffect is
// formatted once per subscriber's negotiated OutputOptions and fanned
// out to all of them, since the head's output stream is shared state
// visible to every local client (§6).
func (s *Server) Deliver(seq uint64, ts time.Time, out headlogic.ServerOutput) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		payload, err := Format(seq, ts, out, sub.opts)
		if err != nil {
			logger.Warn("failed to format output for subscriber", "id", sub.id, "err", err)
			continue
		}
		sub.enqueue(payload)
	}
}
