// bot serves the Telegram webhook: watchlist commands backed by the KV
// store and /analyze proxied to the planner service.
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
	"marketfuse/internal/bot"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
)

func main() {
	cfg := config.Load()
	logger.Init("bot", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[bot] kv init failed: %v", err)
	}
	defer store.Close()

	go metrics.Serve(ctx, cfg.MetricsAddr)

	sender := bot.NewTelegramSender(config.MustEnv("TELEGRAM_BOT_TOKEN"))
	pc := bot.NewPlannerClient(cfg.PlannerURL)
	if !pc.Configured() {
		slog.Info("planner URL not set, /analyze disabled")
	}

	b := bot.New(store, sender, pc, cfg.TelegramWebhookSecret)

	r := httpapi.NewRouter()
	r.HandleFunc("/telegram", b.HandleWebhook).Methods(http.MethodPost)

	slog.Info("bot up", "addr", cfg.ListenAddr)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[bot] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
