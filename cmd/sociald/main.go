// sociald sweeps the configured social platforms once per POST /run
// trigger, deduplicates by post URL and publishes canonical social events.
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
	"marketfuse/internal/ingest/social"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
)

func main() {
	cfg := config.Load()
	logger.Init("sociald", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[sociald] kv init failed: %v", err)
	}
	defer store.Close()

	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	var adapters []social.Adapter
	for _, sub := range cfg.SubredditList() {
		adapters = append(adapters, social.NewRedditAdapter(sub, cfg.RedditFetchLimit))
	}

	w := social.New(bus.New(store.Client()), store, adapters, social.Options{
		Topic:       cfg.TopicSocialRaw,
		DedupTTLSec: cfg.DedupTTLSec,
	})
	w.OnPublished = func(platform string) { m.SocialPublished.WithLabelValues(platform).Inc() }

	r := httpapi.NewRouter()
	r.HandleFunc("/run", w.HandleRun).Methods(http.MethodPost)

	slog.Info("sociald up", "topic", cfg.TopicSocialRaw, "adapters", len(adapters))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[sociald] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
