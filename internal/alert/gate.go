// Package alert turns selected candles and fused events into push
// notifications with per-kind, per-symbol cooldowns. Candle alerts and
// fused-event alerts throttle independently for the same symbol.
package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/logger"
	"marketfuse/internal/model"
)

// CooldownStore is the slice of the KV store the gate needs.
type CooldownStore interface {
	CanAlert(ctx context.Context, kind, symbol string) bool
	SetCooldown(ctx context.Context, kind, symbol string, ttlSec int)
}

// Options carries the gate's tunables.
type Options struct {
	CandleThresholdPct float64
	CandleCooldownSec  int
	FusedSeverityMin   int
	FusedCooldownSec   int
}

// Gate is the alerting stage.
type Gate struct {
	cooldowns CooldownStore
	channels  []Channel
	opts      Options

	// Metrics hooks (optional, set externally)
	OnSent       func(kind string)
	OnSuppressed func(kind string)
}

// New creates a Gate delivering to the given channels.
func New(cooldowns CooldownStore, channels []Channel, opts Options) *Gate {
	return &Gate{cooldowns: cooldowns, channels: channels, opts: opts}
}

// deliver fans the message out to every channel in parallel and reports
// whether at least one accepted it. HTML markup is stripped for channels
// other than Telegram.
func (g *Gate) deliver(ctx context.Context, text string) bool {
	results := make([]bool, len(g.channels))
	var wg sync.WaitGroup
	for i, ch := range g.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			msg := text
			if ch.Name() != "telegram" {
				msg = StripMarkup(text)
			}
			results[i] = ch.Send(ctx, msg)
		}(i, ch)
	}
	wg.Wait()

	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

// OnCandle applies the price-change threshold and the (candle, symbol)
// cooldown, then delivers. The cooldown is set only after at least one
// channel accepted, so a fully failed send retries on the next event.
func (g *Gate) OnCandle(ctx context.Context, c model.Candle) {
	pct := c.ChangePct()
	if math.Abs(pct) < g.opts.CandleThresholdPct {
		return
	}
	if !g.cooldowns.CanAlert(ctx, model.KindCandle1m, c.Symbol) {
		slog.Debug("candle alert throttled", "symbol", c.Symbol)
		g.countSuppressed(model.KindCandle1m)
		return
	}

	if g.deliver(ctx, FormatCandleMessage(c, pct)) {
		g.cooldowns.SetCooldown(ctx, model.KindCandle1m, c.Symbol, g.opts.CandleCooldownSec)
		slog.Info("candle alert sent", "symbol", c.Symbol, "change_pct", pct,
			"correlation_id", logger.EventID(c.Symbol, c.MinuteTSMS))
		g.countSent(model.KindCandle1m)
	}
}

// OnFused applies the severity threshold and the (fused, symbol) cooldown,
// then delivers.
func (g *Gate) OnFused(ctx context.Context, ev model.FusedEvent) {
	if ev.Severity < g.opts.FusedSeverityMin {
		return
	}
	if !g.cooldowns.CanAlert(ctx, model.KindFused, ev.Symbol) {
		slog.Debug("fused alert throttled", "symbol", ev.Symbol)
		g.countSuppressed(model.KindFused)
		return
	}

	if g.deliver(ctx, FormatFusedMessage(ev)) {
		g.cooldowns.SetCooldown(ctx, model.KindFused, ev.Symbol, g.opts.FusedCooldownSec)
		slog.Info("fused alert sent", "symbol", ev.Symbol,
			"severity", ev.Severity, "direction", ev.Direction,
			"correlation_id", logger.EventID(ev.Symbol, ev.MinuteTSMS))
		g.countSent(model.KindFused)
	}
}

func (g *Gate) countSent(kind string) {
	if g.OnSent != nil {
		g.OnSent(kind)
	}
}

func (g *Gate) countSuppressed(kind string) {
	if g.OnSuppressed != nil {
		g.OnSuppressed(kind)
	}
}

// HandlePush is the POST /pubsub handler for events.normalized pushes.
func (g *Gate) HandlePush(w http.ResponseWriter, r *http.Request) {
	data, attrs, err := bus.DecodePush(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		httpapi.Ack(w)
		return
	}

	kind := attrs["event_type"]
	if kind == "" {
		var et struct {
			EventType string `json:"event_type"`
		}
		_ = json.Unmarshal(data, &et)
		kind = et.EventType
	}

	ctx := r.Context()
	switch kind {
	case model.KindCandle1m:
		var c model.Candle
		if err := json.Unmarshal(data, &c); err != nil {
			slog.Warn("invalid candle event", "err", err)
			break
		}
		g.OnCandle(ctx, c)
	case model.KindFused:
		var ev model.FusedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("invalid fused event", "err", err)
			break
		}
		g.OnFused(ctx, ev)
	}
	httpapi.Ack(w)
}
