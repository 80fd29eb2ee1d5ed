// Package model defines the canonical event records exchanged between
// pipeline stages: trades, candles, evidence items, fused events and
// analysis answers. All records are immutable once published.
package model

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the bus. Every normalized event record embeds one
// of these in its event_type field and as a message attribute so consumers
// can filter subscription-side.
const (
	KindTrade     = "trade"
	KindHeartbeat = "heartbeat"
	KindNews      = "news"
	KindSocial    = "social"
	KindCandle1m  = "candle_1m"
	KindFused     = "fused_event"
)

// Trade is a single tick-level trade from the market feed.
// Trades live only on the bus; they are discarded after aggregation.
type Trade struct {
	EventType string  `json:"event_type"`
	Symbol    string  `json:"symbol"`
	TSMS      int64   `json:"ts_ms"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	SourceTag string  `json:"source_tag"`
}

// JSON returns the JSON-encoded trade (ignoring errors for hot-path usage).
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// Heartbeat is a liveness marker published on trades.raw.
// Consumers must ignore it.
type Heartbeat struct {
	EventType  string    `json:"event_type"`
	IngestedAt time.Time `json:"ingested_at"`
	Message    string    `json:"message"`
}

// NewHeartbeat creates a heartbeat event stamped now.
func NewHeartbeat(msg string) Heartbeat {
	return Heartbeat{
		EventType:  KindHeartbeat,
		IngestedAt: time.Now().UTC(),
		Message:    msg,
	}
}
