// alertgate applies thresholds and cooldowns to normalized events and fans
// accepted alerts out to the configured push channels.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketfuse/config"
	"marketfuse/internal/alert"
	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
	"marketfuse/internal/model"
)

func main() {
	cfg := config.Load()
	logger.Init("alertgate", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[alertgate] kv init failed: %v", err)
	}
	defer store.Close()

	b := bus.New(store.Client())
	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	var channels []alert.Channel
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, alert.NewTelegramChannel(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.LINEChannelToken != "" && cfg.LINETo != "" {
		channels = append(channels, alert.NewLINEChannel(cfg.LINEChannelToken, cfg.LINETo))
	}
	if len(channels) == 0 {
		slog.Warn("no push channels configured, alerts will be dropped")
	}

	g := alert.New(store, channels, alert.Options{
		CandleThresholdPct: cfg.CandleAlertThresholdPct,
		CandleCooldownSec:  cfg.CandleCooldownSec,
		FusedSeverityMin:   cfg.FusedAlertSeverityMin,
		FusedCooldownSec:   cfg.FusedCooldownSec,
	})
	g.OnSent = func(kind string) { m.AlertsSent.WithLabelValues(kind).Inc() }
	g.OnSuppressed = func(kind string) { m.AlertsThrottled.WithLabelValues(kind).Inc() }

	go func() {
		err := b.Subscribe(ctx, func(_ string, env bus.Envelope) {
			switch env.Attributes["event_type"] {
			case model.KindCandle1m:
				var c model.Candle
				if err := json.Unmarshal(env.Data, &c); err != nil {
					slog.Warn("candle decode failed", "err", err)
					return
				}
				g.OnCandle(ctx, c)
			case model.KindFused:
				var ev model.FusedEvent
				if err := json.Unmarshal(env.Data, &ev); err != nil {
					slog.Warn("fused decode failed", "err", err)
					return
				}
				g.OnFused(ctx, ev)
			}
		}, cfg.TopicEventsNormalized)
		if err != nil && ctx.Err() == nil {
			slog.Error("event subscription ended", "err", err)
		}
	}()

	r := httpapi.NewRouter()
	r.HandleFunc("/pubsub", g.HandlePush).Methods(http.MethodPost)

	slog.Info("alertgate up",
		"channels", len(channels),
		"candle_threshold_pct", cfg.CandleAlertThresholdPct,
		"fused_severity_min", cfg.FusedAlertSeverityMin)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[alertgate] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
