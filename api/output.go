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

// Package api implements the Client API collaborator (§6): a per-
// subscriber JSON-over-WebSocket stream, served on a single route, with
// the two configurable output formatting options the spec names.
package api

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/klaytn/hnode/headlogic"
	"github.com/klaytn/hnode/ledger"
	"github.com/klaytn/hnode/snapshot"
)

// TxFormat selects how a transaction is rendered in delivered output.
type TxFormat string

const (
	TxFormatJSON    TxFormat = "json"
	TxFormatCBORHex TxFormat = "cbor-hex"
)

// UTxOInSnapshot selects whether a snapshot's utxo field is included.
type UTxOInSnapshot string

const (
	UTxOInclude UTxOInSnapshot = "include"
	UTxOOmit    UTxOInSnapshot = "omit"
)

// OutputOptions is negotiated per connection (query parameters on the
// websocket upgrade request; see parseOutputOptions).
type OutputOptions struct {
	TxFormat       TxFormat
	UTxOInSnapshot UTxOInSnapshot
}

// DefaultOutputOptions matches the spec's plain-JSON, utxo-included mode.
var DefaultOutputOptions = OutputOptions{TxFormat: TxFormatJSON, UTxOInSnapshot: UTxOInclude}

func encodeTx(tx ledger.Tx, opts OutputOptions) (interface{}, error) {
	if opts.TxFormat != TxFormatCBORHex {
		return tx, nil
	}
	raw, err := cbor.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return hex.EncodeToString(raw), nil
}

func encodeTxs(txs []ledger.Tx, opts OutputOptions) (interface{}, error) {
	encoded := make([]interface{}, len(txs))
	for i, tx := range txs {
		e, err := encodeTx(tx, opts)
		if err != nil {
			return nil, err
		}
		encoded[i] = e
	}
	return encoded, nil
}

// encodeSnapshot renders a snapshot object per §6: confirmedTransactions
// always present (hex-encoded per-entry when cbor-hex is selected), utxo
// present unless UTxOInSnapshot is omit.
func encodeSnapshot(number uint64, utxo ledger.UTxO, txs []ledger.Tx, opts OutputOptions) (map[string]interface{}, error) {
	confirmedTxs, err := encodeTxs(txs, opts)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{
		"number":                number,
		"confirmedTransactions": confirmedTxs,
	}
	if opts.UTxOInSnapshot != UTxOOmit {
		m["utxo"] = utxo
	}
	return m, nil
}

func encodeConfirmed(c snapshot.Confirmed, opts OutputOptions) (map[string]interface{}, error) {
	if c.IsInitial {
		return encodeSnapshot(0, c.UTxO, nil, opts)
	}
	return encodeSnapshot(c.Snapshot.Number, c.Snapshot.UTxO, c.Snapshot.ConfirmedTxs, opts)
}

// Format renders one ClientEffect as the JSON object delivered over the
// websocket: {seq, timestamp, tag, ...payload}, per §6. seq is always the
// id of the input that produced it (Testable Property 8); timestamp is
// supplied by the caller (the node runtime), never read here.
func Format(seq uint64, ts time.Time, out headlogic.ServerOutput, opts OutputOptions) ([]byte, error) {
	m := map[string]interface{}{
		"seq":       seq,
		"timestamp": ts.UTC().Format(time.RFC3339Nano),
		"tag":       string(out.Tag),
	}
	switch out.Tag {
	case headlogic.TagCommitted:
		m["party"] = out.Party
		m["utxo"] = out.UTxO
	case headlogic.TagHeadIsAborted, headlogic.TagHeadIsFinalized, headlogic.TagGetUTxOResponse:
		m["utxo"] = out.UTxO
	case headlogic.TagHeadIsClosed, headlogic.TagHeadIsContested, headlogic.TagReadyToFanout:
		m["snapshotNumber"] = out.SnapshotNumber
	case headlogic.TagSnapshotConfirmed:
		confirmed, err := encodeConfirmed(out.Confirmed, opts)
		if err != nil {
			return nil, err
		}
		m["snapshot"] = confirmed
	case headlogic.TagTxInvalid, headlogic.TagCommandFailed, headlogic.TagInvalidInput:
		m["reason"] = out.Reason
		if out.FailedInput != nil {
			m["failedInput"] = out.FailedInput
		}
	case headlogic.TagPostTxOnChainFailed:
		m["reason"] = out.Reason
		postChainTx := map[string]interface{}{"kind": out.FailedTx.Kind}
		if out.FailedTx.Confirmed.Snapshot.Number != 0 || out.FailedTx.Confirmed.IsInitial {
			confirmed, err := encodeConfirmed(out.FailedTx.Confirmed, opts)
			if err != nil {
				return nil, err
			}
			// Nested per §6: postChainTx.confirmedSnapshot.snapshot.
			postChainTx["confirmedSnapshot"] = map[string]interface{}{"snapshot": confirmed}
		}
		m["postChainTx"] = postChainTx
	case headlogic.TagPeerConnected, headlogic.TagPeerDisconnected:
		m["peer"] = out.Peer
	}
	return json.Marshal(m)
}

// jsonMarshalOrPanic is used only for payloads this package itself
// constructs (Greetings), never for user-influenced data.
func jsonMarshalOrPanic(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
