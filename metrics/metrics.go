package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battleground_admissions_total",
			Help: "Queue admission attempts by template and result",
		},
		[]string{"template", "result"}, // queued|<admission reason>
	)

	ReadyChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battleground_ready_checks_total",
			Help: "Ready-check transitions by template and outcome",
		},
		[]string{"template", "outcome"}, // reserved|expired|cancelled|starting|started|aborted
	)

	SlotRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battleground_slot_retries_total",
			Help: "Ready-checks that found no free map slot and were requeued",
		},
		[]string{"template"},
	)

	QueuedPlayers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "battleground_queued_players",
			Help: "Players currently waiting in a template queue",
		},
		[]string{"template"},
	)

	ActiveMatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "battleground_active_matches",
			Help: "Live match instances (one per team)",
		},
	)

	Penalties = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battleground_penalties_total",
			Help: "Timed admission penalties armed, by kind",
		},
		[]string{"kind"}, // deserter|queue_cooldown
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "battleground_command_duration_seconds",
			Help:    "Duration of queue command handling",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	Provisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battleground_provisions_total",
			Help: "Game server provisioning attempts for started matches",
		},
		[]string{"result"}, // Success|Failure
	)

	ProvisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "battleground_provision_duration_seconds",
			Help:    "Duration of game server provisioning",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(Admissions)
	prometheus.MustRegister(ReadyChecks)
	prometheus.MustRegister(SlotRetries)
	prometheus.MustRegister(QueuedPlayers)
	prometheus.MustRegister(ActiveMatches)
	prometheus.MustRegister(Penalties)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(Provisions)
	prometheus.MustRegister(ProvisionDuration)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
