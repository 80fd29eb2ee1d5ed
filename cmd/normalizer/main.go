// normalizer applies raw trades to open candles and periodically finalizes
// stale minutes into the candle table, publishing finalized candles onto
// the bus. Trades arrive both over the bus subscription and over the
// POST /pubsub push endpoint.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketfuse/config"
	"marketfuse/internal/agg"
	"marketfuse/internal/bus"
	"marketfuse/internal/finalizer"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
	"marketfuse/internal/model"
	"marketfuse/internal/store/candledb"
)

func main() {
	cfg := config.Load()
	logger.Init("normalizer", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[normalizer] kv init failed: %v", err)
	}
	defer store.Close()

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	db, err := candledb.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[normalizer] candledb init failed: %v", err)
	}
	defer db.Close()

	b := bus.New(store.Client())
	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	a := agg.New(store, cfg.CandleTTLSec)
	a.OnApplied = m.TradesTotal.Inc
	a.OnDropped = m.TradesDropped.Inc

	fin := finalizer.New(store, db, b, cfg.TopicEventsNormalized, cfg.FinalizeGraceSec)
	fin.SetTOTPSecret(cfg.AdminTOTPSecret)
	fin.OnFinalized = m.CandlesFinal.Inc
	fin.OnError = m.FinalizeErrors.Inc
	go fin.Run(ctx, time.Duration(cfg.FlushTickSec)*time.Second)

	go func() {
		err := b.Subscribe(ctx, func(_ string, env bus.Envelope) {
			var t model.Trade
			if err := json.Unmarshal(env.Data, &t); err != nil {
				slog.Warn("trade decode failed", "err", err)
				return
			}
			_ = a.Apply(ctx, t)
		}, cfg.TopicTradesRaw)
		if err != nil && ctx.Err() == nil {
			slog.Error("trade subscription ended", "err", err)
		}
	}()

	r := httpapi.NewRouter()
	r.HandleFunc("/pubsub", a.HandlePush).Methods(http.MethodPost)
	r.HandleFunc("/flush", fin.HandleFlush).Methods(http.MethodPost)

	slog.Info("normalizer up",
		"topic_in", cfg.TopicTradesRaw, "topic_out", cfg.TopicEventsNormalized,
		"flush_tick_sec", cfg.FlushTickSec, "grace_sec", cfg.FinalizeGraceSec)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[normalizer] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
