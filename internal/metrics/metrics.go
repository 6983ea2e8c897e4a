package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	LedgerDeltas = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusfeed_ledger_deltas_total",
		Help: "Ledger deltas applied, by rule",
	}, []string{"rule"})
	StoreConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusfeed_store_conflicts_total",
		Help: "Store write conflicts that were retried, by operation",
	}, []string{"op"})
	NotificationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campusfeed_notifications_created_total",
		Help: "Notifications written by fan-out",
	})
	ReconcileTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campusfeed_reconcile_tasks_total",
		Help: "Reconciliation tasks by kind and outcome",
	}, []string{"kind", "outcome"})
	LiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campusfeed_live_sessions",
		Help: "Open realtime sessions",
	})
)

func init() {
	prometheus.MustRegister(LedgerDeltas, StoreConflicts, NotificationsCreated, ReconcileTasks, LiveSessions)
}

// StartServer serves /metrics on addr (e.g. ":9090") in the background.
func StartServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
}
