////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package eventModel

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Event labels.
const (
	eventMessage          = "message"
	eventReaction         = "reaction"
	eventDeleteReaction   = "delete_reaction"
	eventDeleteMessage    = "delete_message"
	eventUpdate           = "update"
	eventStatus           = "status"
	eventJoin             = "join"
	eventLeave            = "leave"
	eventOutgoing         = "outgoing"
	eventOutgoingReaction = "outgoing_reaction"
)

// Outcome labels.
const (
	outcomeStored    = "stored"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeNoop      = "noop"
	outcomeError     = "error"
)

type metrics struct {
	events *prometheus.CounterVec
	queue  prometheus.GaugeFunc
}

// newMetrics creates the event counters and registers them with reg, if it is
// not nil.
func newMetrics(reg prometheus.Registerer, queueLen func() int) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xxdk",
			Subsystem: "eventstore",
			Name:      "events_total",
			Help:      "Events handled by the event model by outcome.",
		}, []string{"event", "outcome"}),
		queue: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "xxdk",
			Subsystem: "eventstore",
			Name:      "writer_queue_depth",
			Help:      "Jobs waiting for the store writer.",
		}, func() float64 { return float64(queueLen()) }),
	}

	if reg != nil {
		reg.MustRegister(m.events, m.queue)
	}
	return m
}

func (m *metrics) count(event, outcome string) {
	m.events.WithLabelValues(event, outcome).Inc()
}
