// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	RPCRequests *prometheus.CounterVec
	RPCLatency  *prometheus.HistogramVec

	PulledRecords   *prometheus.CounterVec
	PushedRecords   *prometheus.CounterVec
	QuestTransition *prometheus.CounterVec
	TriageTotal     *prometheus.CounterVec
	RoutineSpawns   prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "altair_rpc_requests_total",
			Help: "RPC calls by method and status code",
		}, []string{"method", "code"}),

		RPCLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "altair_rpc_duration_seconds",
			Help:    "RPC latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method"}),

		PulledRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "altair_sync_pulled_records_total",
			Help: "Records returned by pulls",
		}, []string{"type"}),

		// outcome: "accepted" or "conflict"
		PushedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "altair_sync_pushed_records_total",
			Help: "Pushed records by outcome",
		}, []string{"type", "outcome"}),

		QuestTransition: f.NewCounterVec(prometheus.CounterOpts{
			Name: "altair_quest_transitions_total",
			Help: "Quest lifecycle calls by target status and result",
		}, []string{"status", "result"}),

		TriageTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "altair_triage_total",
			Help: "Triage calls by target kind and result",
		}, []string{"kind", "result"}),

		RoutineSpawns: f.NewCounter(prometheus.CounterOpts{
			Name: "altair_routine_spawned_quests_total",
			Help: "Quests created from due routines",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Result maps an error to a short label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
