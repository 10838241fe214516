package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bskybot_commands_executed_total",
	Help: "Number of bot commands executed, by kind and outcome.",
}, []string{"kind", "status"})
