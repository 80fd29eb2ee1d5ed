package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// MinuteBucketMS rounds a millisecond timestamp down to its minute boundary.
// This is the canonical key for a one-minute interval; it is idempotent
// under repeated application.
func MinuteBucketMS(tsMS int64) int64 {
	return (tsMS / 60000) * 60000
}

// OpenCandle is the mutable aggregation state for one (symbol, minute).
// The authoritative copy lives in a Redis hash owned by the aggregator;
// this struct is only a decoded snapshot of that hash.
type OpenCandle struct {
	Symbol       string
	MinuteTSMS   int64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	LastUpdateMS int64
}

// Candle is a finalized 1-minute OHLCV candle. Immutable once published.
type Candle struct {
	EventType   string    `json:"event_type"`
	Symbol      string    `json:"symbol"`
	MinuteTSMS  int64     `json:"minute_ts_ms"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// Key returns the deduplication key for this candle: "symbol:minute".
func (c *Candle) Key() string {
	return c.Symbol + ":" + strconv.FormatInt(c.MinuteTSMS, 10)
}

// ChangePct returns the open-to-close move in percent.
// Defined as 0 when open is not positive.
func (c *Candle) ChangePct() float64 {
	if c.Open <= 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100.0
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
