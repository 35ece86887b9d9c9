package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var adminOpCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_admin_ops",
	Help: "Number of admin API operations, by operation and outcome",
}, []string{"op", "status"})
