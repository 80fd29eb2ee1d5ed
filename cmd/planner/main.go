// planner serves on-demand trade plan analysis over POST /analyze, built
// from candle history plus recent evidence, validated against the plan
// contract with a deterministic fallback.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"marketfuse/config"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/kv"
	"marketfuse/internal/logger"
	"marketfuse/internal/metrics"
	"marketfuse/internal/planner"
	"marketfuse/internal/store/candledb"
)

func main() {
	cfg := config.Load()
	logger.Init("planner", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := kv.New(kv.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("[planner] kv init failed: %v", err)
	}
	defer store.Close()

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	db, err := candledb.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[planner] candledb init failed: %v", err)
	}
	defer db.Close()

	go metrics.Serve(ctx, cfg.MetricsAddr)

	// A typed nil oracle inside the interface would defeat the nil check
	// in Analyze, so only assign when configured.
	var oracle planner.Oracle
	if g := planner.NewGeminiOracle(cfg.OracleAPIKey, cfg.OracleModel); g != nil {
		oracle = g
		slog.Info("reasoning oracle enabled", "model", cfg.OracleModel)
	} else {
		slog.Info("reasoning oracle disabled, serving deterministic fallback plans")
	}

	p := planner.New(db, store, oracle)

	r := httpapi.NewRouter()
	r.HandleFunc("/analyze", p.HandleAnalyze).Methods(http.MethodPost)

	slog.Info("planner up", "addr", cfg.ListenAddr)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go shutdownOnCancel(ctx, srv)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[planner] http server failed: %v", err)
	}
}

func shutdownOnCancel(ctx context.Context, srv *http.Server) {
	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
}
