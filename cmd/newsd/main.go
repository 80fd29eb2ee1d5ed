// newsd collects headlines from the market news provider and configured
// RSS feeds once per POST /run trigger, deduplicates by URL and publishes
// canonical news events.
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
	"marketfuse/internal/ingest/news"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
)

func main() {
	cfg := config.Load()
	logger.Init("newsd", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[newsd] kv init failed: %v", err)
	}
	defer store.Close()

	m := metrics.New()
	go metrics.Serve(ctx, cfg.MetricsAddr)

	c := news.New(bus.New(store.Client()), store, news.Options{
		Topic:       cfg.TopicNewsRaw,
		APIURL:      cfg.NewsAPIURL,
		APIKey:      cfg.NewsAPIKey,
		RSSFeeds:    cfg.RSSFeedList(),
		DedupTTLSec: cfg.DedupTTLSec,
	})
	c.OnPublished = m.NewsPublished.Inc

	r := httpapi.NewRouter()
	r.HandleFunc("/run", c.HandleRun).Methods(http.MethodPost)

	slog.Info("newsd up", "topic", cfg.TopicNewsRaw, "feeds", len(cfg.RSSFeedList()))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[newsd] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
