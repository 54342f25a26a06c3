package assets

import "github.com/prometheus/client_golang/prometheus"

// transitionsTotal counts lifecycle transition attempts by target status and
// outcome ("accepted" or "rejected").
var transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "asset_transitions_total",
	Help: "Asset lifecycle transitions by target status and outcome",
}, []string{"status", "outcome"})

func init() { prometheus.MustRegister(transitionsTotal) }
