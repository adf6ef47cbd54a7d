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

// Package metrics exposes the operational gauges a running node exports
// on its monitoring port (§12's supplemented metrics endpoint), grounded
// on the teacher's cmd/kcn Prometheus exporter wiring. Nothing in this
// package is consulted by headlogic; it only observes the state the node
// loop already produced.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klaytn/hnode/headstate"
)

var (
	headPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hnode",
		Name:      "head_phase",
		Help:      "Current head phase: 0=Idle 1=Initial 2=Open 3=Closed 4=Final.",
	})
	snapshotNumber = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hnode",
		Name:      "confirmed_snapshot_number",
		Help:      "Highest locally confirmed snapshot number while the head is Open.",
	})
	peerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hnode",
		Name:      "connected_peers",
		Help:      "Number of peers currently considered connected by the network Hub.",
	})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hnode",
		Name:      "input_queue_depth",
		Help:      "Number of items pending in the input queue (C1).",
	})
)

func init() {
	prometheus.MustRegister(headPhase, snapshotNumber, peerCount, queueDepth)
}

// ObserveHeadState updates the head-state gauges from the node loop's
// freshly computed state, once per step (§12).
func ObserveHeadState(s headstate.State) {
	headPhase.Set(float64(s.Phase))
	if s.Phase == headstate.PhaseOpen {
		snapshotNumber.Set(float64(s.Coordinated.ConfirmedSnapshot.Number()))
	}
}

// SetQueueDepth reports the current C1 backlog.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetPeerCount reports the network Hub's live peer count.
func SetPeerCount(n int) {
	peerCount.Set(float64(n))
}

// Handler exposes the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
