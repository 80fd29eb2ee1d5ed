// Package metrics registers the Prometheus metrics for the fusion pipeline
// and serves them alongside a liveness endpoint.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics shared across services. Each service
// registers the full set and touches only the subset it owns.
type Metrics struct {
	TradesTotal     prometheus.Counter
	TradesDropped   prometheus.Counter
	WSReconnects    prometheus.Counter
	CandlesFinal    prometheus.Counter
	FinalizeErrors  prometheus.Counter
	FusedEvents     prometheus.Counter
	EvidenceTotal   *prometheus.CounterVec // labels: kind
	AlertsSent      *prometheus.CounterVec // labels: kind
	AlertsThrottled *prometheus.CounterVec // labels: kind
	NewsPublished   prometheus.Counter
	SocialPublished *prometheus.CounterVec // labels: platform
}

// New registers and returns the metric set.
func New() *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_trades_total",
			Help: "Total trades processed by the service",
		}),
		TradesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_trades_dropped_total",
			Help: "Trades dropped for missing timestamp or symbol",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_ws_reconnects_total",
			Help: "Total feed websocket reconnection attempts",
		}),
		CandlesFinal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_candles_finalized_total",
			Help: "Total 1m candles finalized",
		}),
		FinalizeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_finalize_errors_total",
			Help: "Finalization errors (unreadable hashes, failed upserts)",
		}),
		FusedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_fused_events_total",
			Help: "Total fused events published",
		}),
		EvidenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_evidence_appended_total",
			Help: "Evidence items appended per kind",
		}, []string{"kind"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_alerts_sent_total",
			Help: "Alerts delivered per event kind",
		}, []string{"kind"}),
		AlertsThrottled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_alerts_throttled_total",
			Help: "Alerts suppressed by cooldown per event kind",
		}, []string{"kind"}),
		NewsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketfuse_news_published_total",
			Help: "News events published after deduplication",
		}),
		SocialPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfuse_social_published_total",
			Help: "Social events published per platform",
		}, []string{"platform"}),
	}

	prometheus.MustRegister(
		m.TradesTotal,
		m.TradesDropped,
		m.WSReconnects,
		m.CandlesFinal,
		m.FinalizeErrors,
		m.FusedEvents,
		m.EvidenceTotal,
		m.AlertsSent,
		m.AlertsThrottled,
		m.NewsPublished,
		m.SocialPublished,
	)
	return m
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server failed", "err", err)
	}
}
