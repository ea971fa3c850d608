// Package metrics registers the bot's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// CommandsHandled counts dispatched commands by command word and outcome.
	CommandsHandled *prometheus.CounterVec
	// ClockIns counts successful clock-ins.
	ClockIns prometheus.Counter
	// ClockOuts counts successful clock-outs.
	ClockOuts prometheus.Counter
	// LatenessSeconds records the lateness added on each clock-in.
	LatenessSeconds prometheus.Observer
	// Resets counts weekly resets by trigger (command or scheduler).
	Resets *prometheus.CounterVec
	// TransportReconnects counts dropped chat connections by platform.
	TransportReconnects *prometheus.CounterVec
)

// Init registers metrics with the default registry (idempotent).
func Init() {
	once.Do(func() {
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_commands_total",
			Help: "Number of chat commands handled",
		}, []string{"command", "outcome"})
		ClockIns = promauto.NewCounter(prometheus.CounterOpts{Name: "timebot_clock_ins_total", Help: "Number of successful clock-ins"})
		ClockOuts = promauto.NewCounter(prometheus.CounterOpts{Name: "timebot_clock_outs_total", Help: "Number of successful clock-outs"})
		LatenessSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "timebot_lateness_seconds",
			Help:    "Lateness recorded per clock-in",
			Buckets: []float64{0, 60, 300, 900, 1800, 3600, 7200, 14400},
		})
		Resets = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_resets_total",
			Help: "Number of weekly resets",
		}, []string{"trigger"})
		TransportReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "timebot_transport_reconnects_total",
			Help: "Number of chat transport connection drops",
		}, []string{"platform"})
	})
}

// ObserveCommand records a handled command.
func ObserveCommand(command, outcome string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(command, outcome).Inc()
	}
}

// ObserveClockIn records a clock-in and its lateness.
func ObserveClockIn(late time.Duration) {
	if ClockIns != nil {
		ClockIns.Inc()
	}
	if LatenessSeconds != nil {
		LatenessSeconds.Observe(late.Seconds())
	}
}

// ObserveClockOut records a clock-out.
func ObserveClockOut() {
	if ClockOuts != nil {
		ClockOuts.Inc()
	}
}

// ObserveReset records a weekly reset.
func ObserveReset(trigger string) {
	if Resets != nil {
		Resets.WithLabelValues(trigger).Inc()
	}
}

// ObserveReconnect records a dropped transport connection.
func ObserveReconnect(platform string) {
	if TransportReconnects != nil {
		TransportReconnects.WithLabelValues(platform).Inc()
	}
}
