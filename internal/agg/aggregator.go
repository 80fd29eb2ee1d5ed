// Package agg maintains the mutable OpenCandle for each
// (symbol, current minute) and applies trades to it. The whole update is a
// single atomic scripted operation against the KV store; that per-key
// serialization is what lets multiple aggregator instances run in parallel
// without partition coordination.
package agg

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/logger"
	"marketfuse/internal/model"
)

// CandleStore is the slice of the KV store the aggregator needs.
type CandleStore interface {
	UpsertTrade(ctx context.Context, symbol string, minuteTSMS int64, price, volume float64, tsMS int64, ttlSec int) error
}

const (
	applyAttempts = 3
	applyBackoff  = 100 * time.Millisecond
)

// Aggregator applies trades to open candles.
type Aggregator struct {
	store  CandleStore
	ttlSec int

	// Metrics hooks (optional, set externally)
	OnApplied func()
	OnDropped func()
}

// New creates an Aggregator. ttlSec guards orphaned minutes: every applied
// trade refreshes the open candle's expiry.
func New(store CandleStore, ttlSec int) *Aggregator {
	return &Aggregator{store: store, ttlSec: ttlSec}
}

// Apply incorporates a single trade into its minute's open candle.
// Trades without a timestamp or symbol are dropped silently; duplicates
// double-count volume by design (the feed treats late re-emits as new
// fills). Transient KV failures retry up to three times before surfacing.
func (a *Aggregator) Apply(ctx context.Context, t model.Trade) error {
	if t.EventType != "" && t.EventType != model.KindTrade {
		return nil // heartbeats, subscription acks
	}
	if t.TSMS == 0 || t.Symbol == "" {
		if a.OnDropped != nil {
			a.OnDropped()
		}
		return nil
	}

	bucket := model.MinuteBucketMS(t.TSMS)

	var err error
	for attempt := 1; attempt <= applyAttempts; attempt++ {
		err = a.store.UpsertTrade(ctx, t.Symbol, bucket, t.Price, t.Volume, t.TSMS, a.ttlSec)
		if err == nil {
			if a.OnApplied != nil {
				a.OnApplied()
			}
			return nil
		}
		if attempt < applyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * applyBackoff):
			}
		}
	}
	slog.Error("trade apply failed",
		"symbol", t.Symbol, "ts_ms", t.TSMS,
		"correlation_id", logger.EventID(t.Symbol, t.TSMS), "err", err)
	return err
}

// HandlePush is the POST /pubsub handler for push-delivered trades.raw
// messages. Invalid input is acknowledged and dropped; only transport-level
// body errors return 400 so the bus retries.
func (a *Aggregator) HandlePush(w http.ResponseWriter, r *http.Request) {
	data, _, err := bus.DecodePush(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		httpapi.Ack(w)
		return
	}

	var t model.Trade
	if err := json.Unmarshal(data, &t); err != nil {
		slog.Warn("invalid trade event", "err", err)
		httpapi.Ack(w)
		return
	}

	if err := a.Apply(r.Context(), t); err != nil {
		// Transient after retries: signal redelivery.
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	httpapi.Ack(w)
}
