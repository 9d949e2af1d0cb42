// Package observability holds the engine's Prometheus collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts hub-pushed messages by linkman type.
	MessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiorasync_messages_received_total",
		Help: "Hub-pushed messages applied to the conversation store.",
	}, []string{"linkman_type"})

	// Sends counts outbound sends by result.
	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiorasync_sends_total",
		Help: "Outbound message sends by terminal result.",
	}, []string{"result"}) // persisted, failed, sealed

	// SendDuration observes the transmit round-trip.
	SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fiorasync_send_duration_seconds",
		Help:    "Round-trip time of sendMessage acknowledgements.",
		Buckets: prometheus.DefBuckets,
	})

	// Reconnects counts transport reconnections.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiorasync_reconnects_total",
		Help: "Completed reconnect cycles (a bootstrap re-run each).",
	})

	// HistoryMerged counts messages merged in by the reconciler and
	// bootstrap, by source.
	HistoryMerged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiorasync_history_merged_total",
		Help: "History messages union-merged into the store.",
	}, []string{"source"}) // focus, tick, backfill
)
