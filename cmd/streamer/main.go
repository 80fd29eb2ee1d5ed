// streamer maintains the websocket connection to the trade feed and
// publishes raw trades onto the bus.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"marketfuse/config"
	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/ingest/trades"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
)

func main() {
	cfg := config.Load()
	logger.Init("streamer", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[streamer] kv init failed: %v", err)
	}
	defer store.Close()

	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	s := trades.New(bus.New(store.Client()), trades.Options{
		FeedURL:         cfg.TradeFeedURL,
		APIKey:          config.MustEnv("TRADE_FEED_API_KEY"),
		Symbols:         cfg.SymbolList(),
		Topic:           cfg.TopicTradesRaw,
		SourceTag:       "finnhub",
		PingInterval:    time.Duration(cfg.PingIntervalSec) * time.Second,
		ReconnectMinSec: cfg.ReconnectMinSec,
		ReconnectMaxSec: cfg.ReconnectMaxSec,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
	})
	s.OnTrade = m.TradesTotal.Inc
	s.OnReconnect = m.WSReconnects.Inc
	go s.Run(ctx)

	slog.Info("streamer up",
		"feed", cfg.TradeFeedURL, "symbols", cfg.StreamSymbols, "topic", cfg.TopicTradesRaw)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: httpapi.NewRouter()}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[streamer] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
