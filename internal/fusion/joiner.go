// Package fusion joins finalized candles with the recent news and social
// evidence for the same symbol and publishes scored fused events. It also
// owns the ingest side of the evidence buffer: news.raw and social.raw
// records are routed here, symbol-tagged and appended.
package fusion

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"marketfuse/internal/bus"
	"marketfuse/internal/httpapi"
	"marketfuse/internal/logger"
	"marketfuse/internal/model"
)

const (
	schemaVersion = "1.0"

	// Evidence lists outlive the longest lookback; the read-side window
	// filter does the precise cut.
	evidenceRetentionSec = 7200
	latestCloseTTLSec    = 21600

	maxEvidenceItems = 5
	maxHeadlines     = 3

	// Buffered summaries are capped at append time so no upstream source
	// can bloat the evidence lists.
	maxSummaryRunes = 400
)

// EvidenceStore is the slice of the KV store the joiner needs.
type EvidenceStore interface {
	AppendNews(ctx context.Context, symbol string, item model.NewsItem, retentionSec int)
	AppendSocial(ctx context.Context, symbol string, item model.SocialItem, retentionSec int)
	RecentNews(ctx context.Context, symbol string, lookbackSec int) []model.NewsItem
	RecentSocial(ctx context.Context, symbol string, lookbackSec int) []model.SocialItem
	SetLatestClose(ctx context.Context, symbol string, close float64, minuteTSMS int64, ttlSec int) error
}

// Options carries the joiner's tunables.
type Options struct {
	Topic             string
	JoinThresholdPct  float64
	NewsLookbackSec   int
	SocialLookbackSec int
	Watchlist         map[string]bool
}

// Joiner is the fusion stage.
type Joiner struct {
	store EvidenceStore
	pub   bus.Publisher
	opts  Options

	now func() time.Time

	// Metrics hooks (optional, set externally)
	OnFusedEvent func()
	OnEvidence   func(kind string)
}

// New creates a Joiner.
func New(store EvidenceStore, pub bus.Publisher, opts Options) *Joiner {
	return &Joiner{store: store, pub: pub, opts: opts, now: time.Now}
}

// Severity scores a fused event from the price move and evidence counts.
// Bounded to [0, 100].
func Severity(changePct float64, newsCount, socialCount int) int {
	score := int(math.Round(15*math.Abs(changePct))) +
		min(50, 8*newsCount) +
		min(30, 5*socialCount)
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// DirectionOf maps a price change to its direction label.
func DirectionOf(changePct float64) string {
	switch {
	case changePct > 0:
		return model.DirectionPositive
	case changePct < 0:
		return model.DirectionNegative
	default:
		return model.DirectionNeutral
	}
}

// OnCandle processes one finalized candle: cache its close, and when the
// move clears the join threshold, look up evidence and publish a fused
// event. A KV read failure degrades to empty evidence; a publish failure is
// logged and dropped.
func (j *Joiner) OnCandle(ctx context.Context, c model.Candle) {
	changePct := c.ChangePct()

	// The close cache serves downstream consumers regardless of whether
	// this candle fuses.
	if err := j.store.SetLatestClose(ctx, c.Symbol, c.Close, c.MinuteTSMS, latestCloseTTLSec); err != nil {
		slog.Warn("latest close cache failed", "symbol", c.Symbol, "err", err)
	}

	if math.Abs(changePct) < j.opts.JoinThresholdPct {
		return
	}

	news := j.store.RecentNews(ctx, c.Symbol, j.opts.NewsLookbackSec)
	social := j.store.RecentSocial(ctx, c.Symbol, j.opts.SocialLookbackSec)

	ev := model.FusedEvent{
		SchemaVersion: schemaVersion,
		EventType:     model.KindFused,
		Source:        "fusion-joiner",
		Symbol:        c.Symbol,
		MinuteTSMS:    c.MinuteTSMS,
		Price: model.PriceBlock{
			Open:        c.Open,
			High:        c.High,
			Low:         c.Low,
			Close:       c.Close,
			Volume:      c.Volume,
			ChangePct1m: changePct,
		},
		Severity:  Severity(changePct, len(news), len(social)),
		Direction: DirectionOf(changePct),
		FusedAt:   j.now().UTC(),
	}

	ev.Context.Market.ChangePct = changePct
	ev.Context.News.Count = len(news)
	for _, n := range news[:min(maxHeadlines, len(news))] {
		ev.Context.News.Headlines = append(ev.Context.News.Headlines, n.Headline)
	}
	ev.Context.Social.Count = len(social)
	for _, s := range social[:min(maxHeadlines, len(social))] {
		ev.Context.Social.TopSignals = append(ev.Context.Social.TopSignals, s.Title)
	}

	ev.Evidence.NewsItems = news[:min(maxEvidenceItems, len(news))]
	ev.Evidence.SocialSignals = social[:min(maxEvidenceItems, len(social))]

	if err := j.pub.Publish(ctx, j.opts.Topic, &ev, nil); err != nil {
		slog.Error("fused event publish failed",
			"symbol", c.Symbol, "correlation_id", logger.EventID(c.Symbol, c.MinuteTSMS), "err", err)
		return
	}
	if j.OnFusedEvent != nil {
		j.OnFusedEvent()
	}
	slog.Info("fused event",
		"symbol", c.Symbol, "severity", ev.Severity, "direction", ev.Direction,
		"news", len(news), "social", len(social),
		"correlation_id", logger.EventID(c.Symbol, c.MinuteTSMS))
}

// OnNews routes one news record into the evidence buffers of every symbol
// it concerns.
func (j *Joiner) OnNews(ctx context.Context, ev model.NewsEvent) {
	symbols := ExtractSymbols(ev.Related, ev.Headline, j.opts.Watchlist)
	if len(symbols) == 0 {
		return
	}

	item := model.NewsItem{
		Headline: ev.Headline,
		URL:      ev.URL,
		Source:   ev.Source,
		Summary:  truncate(ev.Summary, maxSummaryRunes),
		TSUnix:   parseIngestedAt(ev.IngestedAt, j.now()),
	}
	for _, sym := range symbols {
		j.store.AppendNews(ctx, sym, item, evidenceRetentionSec)
		if j.OnEvidence != nil {
			j.OnEvidence(model.KindNews)
		}
	}
}

// OnSocial routes one social record into the evidence buffers of every
// symbol mentioned in its title or text.
func (j *Joiner) OnSocial(ctx context.Context, ev model.SocialEvent) {
	symbols := ExtractSymbols("", ev.Title+" "+ev.Text, j.opts.Watchlist)
	if len(symbols) == 0 {
		return
	}

	item := model.SocialItem{
		Title:      ev.Title,
		Platform:   ev.Platform,
		URL:        ev.URL,
		Engagement: ev.Engagement,
		TSUnix:     parseIngestedAt(ev.IngestedAt, j.now()),
	}
	for _, sym := range symbols {
		j.store.AppendSocial(ctx, sym, item, evidenceRetentionSec)
		if j.OnEvidence != nil {
			j.OnEvidence(model.KindSocial)
		}
	}
}

// parseIngestedAt converts an ISO timestamp to unix seconds, falling back
// to now for records with a missing or malformed stamp.
func parseIngestedAt(iso string, now time.Time) int64 {
	if iso != "" {
		if t, err := time.Parse(time.RFC3339, iso); err == nil {
			return t.Unix()
		}
	}
	return now.Unix()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// HandlePush is the POST /pubsub handler. Events are dispatched by their
// event_type attribute; unknown kinds are acknowledged and dropped.
func (j *Joiner) HandlePush(w http.ResponseWriter, r *http.Request) {
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
		j.OnCandle(ctx, c)
	case model.KindNews:
		var ev model.NewsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("invalid news event", "err", err)
			break
		}
		j.OnNews(ctx, ev)
	case model.KindSocial:
		var ev model.SocialEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Warn("invalid social event", "err", err)
			break
		}
		j.OnSocial(ctx, ev)
	}
	httpapi.Ack(w)
}
