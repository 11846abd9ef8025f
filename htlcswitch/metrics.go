package htlcswitch

import "github.com/prometheus/client_golang/prometheus"

var (
	htlcsForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostedchannel",
			Subsystem: "htlcswitch",
			Name:      "htlcs_total",
			Help:      "Number of htlc updates processed by a hosted channel link, by event type.",
		},
		[]string{"event"},
	)

	signAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostedchannel",
			Subsystem: "htlcswitch",
			Name:      "sign_attempts_total",
			Help:      "Number of CMD_SIGN attempts, by outcome.",
		},
		[]string{"outcome"},
	)

	resyncOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hostedchannel",
			Subsystem: "htlcswitch",
			Name:      "resync_outcomes_total",
			Help:      "Number of reconnect resync attempts, by classification.",
		},
		[]string{"outcome"},
	)

	activeLinks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hostedchannel",
			Subsystem: "htlcswitch",
			Name:      "active_links",
			Help:      "Number of hosted channel links currently registered.",
		},
	)
)

func init() {
	prometheus.MustRegister(htlcsForwarded, signAttempts, resyncOutcomes, activeLinks)
}
