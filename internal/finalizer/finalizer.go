// Package finalizer closes out stale minutes: once a minute can no longer
// receive trades it is read from the KV store, persisted to the candle
// table, published downstream and its KV key removed. The persist → publish
// → delete order is load-bearing; see Flush.
package finalizer

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pquerna/otp/totp"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/logger"
	"marketfuse/internal/model"
)

// CandleKV is the slice of the KV store the finalizer needs.
type CandleKV interface {
	ScanOpenCandles(ctx context.Context) ([]string, error)
	ReadOpenCandle(ctx context.Context, key string) (model.OpenCandle, error)
	DeleteKey(ctx context.Context, key string) error
}

// CandleTable is the durable sink for finalized candles.
type CandleTable interface {
	UpsertCandle(ctx context.Context, c model.Candle) error
}

// Result counts the outcome of one flush pass.
type Result struct {
	Scanned   int `json:"scanned"`
	Finalized int `json:"finalized"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Finalizer runs the periodic stale-minute sweep.
type Finalizer struct {
	kv       CandleKV
	table    CandleTable
	pub      bus.Publisher
	topic    string
	graceSec int

	// now is swappable for tests.
	now func() time.Time

	// Optional TOTP secret guarding the on-demand flush endpoint.
	totpSecret string

	// Metrics hooks (optional, set externally)
	OnFinalized func()
	OnError     func()
}

// New creates a Finalizer publishing finalized candles on topic.
func New(kv CandleKV, table CandleTable, pub bus.Publisher, topic string, graceSec int) *Finalizer {
	return &Finalizer{
		kv:       kv,
		table:    table,
		pub:      pub,
		topic:    topic,
		graceSec: graceSec,
		now:      time.Now,
	}
}

// SetTOTPSecret enables TOTP verification on the flush endpoint.
func (f *Finalizer) SetTOTPSecret(secret string) { f.totpSecret = secret }

// Run ticks Flush every tick until ctx is cancelled.
func (f *Finalizer) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res := f.Flush(ctx)
			if res.Finalized > 0 || res.Errors > 0 {
				slog.Info("flush pass",
					"scanned", res.Scanned, "finalized", res.Finalized,
					"skipped", res.Skipped, "errors", res.Errors)
			}
		}
	}
}

// Flush runs one finalization pass. For each open candle older than the
// grace window: upsert the row, publish the candle, delete the key — in
// that order. An upsert failure leaves the key for the next tick; a publish
// failure after a successful upsert still deletes the key, since the table
// row is the canonical record.
func (f *Finalizer) Flush(ctx context.Context) Result {
	var res Result

	nowMS := f.now().UnixMilli()
	currentMinute := model.MinuteBucketMS(nowMS)
	staleThreshold := currentMinute - int64(f.graceSec)*1000

	keys, err := f.kv.ScanOpenCandles(ctx)
	if err != nil {
		slog.Error("flush scan failed", "err", err)
		res.Errors++
		f.countError()
		return res
	}
	res.Scanned = len(keys)

	for _, key := range keys {
		oc, err := f.kv.ReadOpenCandle(ctx, key)
		if err != nil {
			// Corrupt or vanished hash: drop the key rather than
			// re-reading it forever.
			slog.Error("unreadable open candle, dropping", "key", key, "err", err)
			if delErr := f.kv.DeleteKey(ctx, key); delErr != nil {
				slog.Error("drop failed", "key", key, "err", delErr)
			}
			res.Errors++
			f.countError()
			continue
		}

		if oc.MinuteTSMS >= currentMinute || oc.LastUpdateMS > staleThreshold {
			res.Skipped++
			continue
		}

		c := model.Candle{
			EventType:   model.KindCandle1m,
			Symbol:      oc.Symbol,
			MinuteTSMS:  oc.MinuteTSMS,
			Open:        oc.Open,
			High:        oc.High,
			Low:         oc.Low,
			Close:       oc.Close,
			Volume:      oc.Volume,
			FinalizedAt: f.now().UTC(),
		}

		if err := f.table.UpsertCandle(ctx, c); err != nil {
			// Leave the key in place; the next tick retries.
			slog.Error("candle upsert failed, retrying next tick",
				"key", key, "correlation_id", logger.EventID(c.Symbol, c.MinuteTSMS), "err", err)
			res.Errors++
			f.countError()
			continue
		}

		if err := f.pub.Publish(ctx, f.topic, &c, nil); err != nil {
			// The table row exists; deleting anyway is the documented
			// at-most-once gap for the bus copy.
			slog.Error("candle publish failed",
				"key", key, "correlation_id", logger.EventID(c.Symbol, c.MinuteTSMS), "err", err)
			res.Errors++
			f.countError()
		}

		if err := f.kv.DeleteKey(ctx, key); err != nil {
			slog.Error("candle key delete failed", "key", key, "err", err)
			res.Errors++
			f.countError()
			continue
		}

		res.Finalized++
		if f.OnFinalized != nil {
			f.OnFinalized()
		}
	}
	return res
}

func (f *Finalizer) countError() {
	if f.OnError != nil {
		f.OnError()
	}
}

// HandleFlush is the POST /flush handler for operator-invoked passes. When
// a TOTP secret is configured the caller must present a valid code in
// X-Admin-OTP.
func (f *Finalizer) HandleFlush(w http.ResponseWriter, r *http.Request) {
	if f.totpSecret != "" {
		code := r.Header.Get("X-Admin-OTP")
		if code == "" || !totp.Validate(code, f.totpSecret) {
			httpapi.WriteJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid otp"})
			return
		}
	}
	res := f.Flush(r.Context())
	httpapi.WriteJSON(w, http.StatusOK, res)
}
