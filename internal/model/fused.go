package model

import (
	"encoding/json"
	"time"
)

// Direction of a fused event relative to the price move.
// "mixed" is reserved for a future sentiment classifier; no producer in this
// repo emits it, but consumers must accept it.
const (
	DirectionPositive = "positive"
	DirectionNegative = "negative"
	DirectionNeutral  = "neutral"
	DirectionMixed    = "mixed"
)

// PriceBlock carries the OHLCV snapshot inside a fused event.
type PriceBlock struct {
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	ChangePct1m float64 `json:"change_pct_1m"`
}

// FusionContext summarizes the three fused sources for quick consumption.
type FusionContext struct {
	Market struct {
		ChangePct float64 `json:"change_pct"`
	} `json:"market"`
	News struct {
		Count     int      `json:"count"`
		Headlines []string `json:"headlines"`
	} `json:"news"`
	Social struct {
		Count      int      `json:"count"`
		TopSignals []string `json:"top_signals"`
	} `json:"social"`
}

// FusedEvidence carries the underlying evidence items for downstream agents.
type FusedEvidence struct {
	NewsItems     []NewsItem   `json:"news_items"`
	SocialSignals []SocialItem `json:"social_signals"`
}

// FusedEvent joins a finalized candle with the recent evidence window for
// its symbol. Published on events.normalized; not persisted by the core.
type FusedEvent struct {
	SchemaVersion string        `json:"schema_version"`
	EventType     string        `json:"event_type"`
	Source        string        `json:"source"`
	Symbol        string        `json:"symbol"`
	MinuteTSMS    int64         `json:"minute_ts_ms"`
	Price         PriceBlock    `json:"price"`
	Severity      int           `json:"severity"`
	Direction     string        `json:"direction"`
	Context       FusionContext `json:"fusion_context"`
	Evidence      FusedEvidence `json:"evidence"`
	FusedAt       time.Time     `json:"fused_at"`
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (f *FusedEvent) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
