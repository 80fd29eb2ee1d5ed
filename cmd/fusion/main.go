// fusion joins finalized candles with recent news and social evidence and
// publishes fused events. Events arrive over both the bus subscription and
// the POST /pubsub push endpoint.
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
	"marketfuse/internal/bus"
	"marketfuse/internal/fusion"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
	"marketfuse/internal/model"
)

func main() {
	cfg := config.Load()
	logger.Init("fusion", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[fusion] kv init failed: %v", err)
	}
	defer store.Close()

	b := bus.New(store.Client())
	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	j := fusion.New(store, b, fusion.Options{
		Topic:             cfg.TopicEventsNormalized,
		JoinThresholdPct:  cfg.JoinThresholdPct,
		NewsLookbackSec:   cfg.NewsLookbackSec,
		SocialLookbackSec: cfg.SocialLookbackSec,
		Watchlist:         cfg.Watchlist(),
	})
	j.OnFusedEvent = m.FusedEvents.Inc
	j.OnEvidence = func(kind string) { m.EvidenceTotal.WithLabelValues(kind).Inc() }

	go func() {
		err := b.Subscribe(ctx, func(_ string, env bus.Envelope) {
			dispatch(ctx, j, env)
		}, cfg.TopicEventsNormalized, cfg.TopicNewsRaw, cfg.TopicSocialRaw)
		if err != nil && ctx.Err() == nil {
			slog.Error("event subscription ended", "err", err)
		}
	}()

	r := httpapi.NewRouter()
	r.HandleFunc("/pubsub", j.HandlePush).Methods(http.MethodPost)

	slog.Info("fusion up",
		"topic_out", cfg.TopicEventsNormalized, "join_threshold_pct", cfg.JoinThresholdPct)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[fusion] http server failed: %v", err)
	}
}

// dispatch routes one envelope by its event_type attribute. Fused events
// loop back on the normalized topic and are ignored here.
func dispatch(ctx context.Context, j *fusion.Joiner, env bus.Envelope) {
	switch env.Attributes["event_type"] {
	case model.KindCandle1m:
		var c model.Candle
		if err := json.Unmarshal(env.Data, &c); err != nil {
			slog.Warn("candle decode failed", "err", err)
			return
		}
		j.OnCandle(ctx, c)
	case model.KindNews:
		var ev model.NewsEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			slog.Warn("news decode failed", "err", err)
			return
		}
		j.OnNews(ctx, ev)
	case model.KindSocial:
		var ev model.SocialEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			slog.Warn("social decode failed", "err", err)
			return
		}
		j.OnSocial(ctx, ev)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
