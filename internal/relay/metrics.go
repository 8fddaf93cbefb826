package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	// updatesTotal counts webhook envelopes by routing outcome.
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_updates_total",
			Help: "Total number of webhook updates by routing outcome.",
		},
		[]string{"outcome"}, // routed | ignored | dropped
	)

	// forwardsTotal counts messages relayed between the two sides.
	forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_forwards_total",
			Help: "Total number of messages forwarded between user and support side.",
		},
		[]string{"direction", "kind"}, // to_support|to_user, text|photo|document|video
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, forwardsTotal)
}

const (
	outcomeRouted  = "routed"
	outcomeIgnored = "ignored"
	outcomeDropped = "dropped"

	directionToSupport = "to_support"
	directionToUser    = "to_user"
)
